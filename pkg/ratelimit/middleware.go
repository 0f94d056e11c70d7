package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/castforge/castforge/pkg/config"
	"github.com/castforge/castforge/pkg/internal/httpserver"
	"github.com/castforge/castforge/pkg/metrics"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type rateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int64  `json:"retry_after"`
}

// Middleware applies the fixed-window limit to every route except the
// health and metrics paths. Authenticated callers are throttled per tenant,
// anonymous callers per source address. A counter store outage fails open:
// availability of the protected service wins over strict throttling.
func Middleware(limiter *Limiter, cfg config.RateLimit, logger *zap.Logger) echo.MiddlewareFunc {
	tenantLimit := cfg.TenantPerWindow
	if tenantLimit == 0 {
		tenantLimit = DefaultTenantLimit
	}
	addressLimit := cfg.AddressPerWindow
	if addressLimit == 0 {
		addressLimit = DefaultAddressLimit
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/healthz" || path == "/metrics" {
				return next(c)
			}

			var key string
			var limit int64
			if tenantID := httpserver.GetTenantID(c); tenantID != "" {
				key = TenantKey(tenantID)
				limit = tenantLimit
			} else {
				key = AddressKey(c.RealIP())
				limit = addressLimit
			}

			decision, err := limiter.Admit(c.Request().Context(), key, limit)
			if err != nil {
				// Fail open on counter store outage.
				metrics.RedisErrorsTotal.Inc()
				logger.Error("rate limit check failed", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			if !decision.Allowed {
				metrics.RateLimitedTotal.Inc()
				retryAfter := int64(decision.RetryAfter.Seconds())
				c.Response().Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				return c.JSON(http.StatusTooManyRequests, rateLimitedResponse{
					Error:      "rate_limited",
					RetryAfter: retryAfter,
				})
			}

			return next(c)
		}
	}
}
