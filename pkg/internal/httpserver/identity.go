package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// The auth collaborator terminates sessions and API keys in front of this
// service and forwards the resolved identity in these headers.
const (
	XCastforgeTenantIDHeader = "X-Castforge-TenantID"
)

// GetTenantID returns the authenticated tenant id, or the empty string for
// anonymous callers.
func GetTenantID(ctx echo.Context) string {
	return strings.TrimSpace(ctx.Request().Header.Get(XCastforgeTenantIDHeader))
}

// RequireTenant returns the tenant id or a 401 when the request carries no
// identity.
func RequireTenant(ctx echo.Context) (string, error) {
	id := GetTenantID(ctx)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}
