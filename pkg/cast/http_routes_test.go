package cast

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/castforge/castforge/pkg/budget"
	"github.com/castforge/castforge/pkg/cast/api"
	"github.com/castforge/castforge/pkg/db"
	idocker "github.com/castforge/castforge/pkg/internal/dockertest"
	"github.com/castforge/castforge/pkg/internal/httpserver"
	"github.com/castforge/castforge/pkg/sandbox"
)

const testCostCents int64 = 10

type HttpHandlerSuite struct {
	suite.Suite

	handler     *HttpHandler
	router      *echo.Echo
	orm         *gorm.DB
	redisClient *redis.Client
	db          db.Database
}

func (s *HttpHandlerSuite) SetupSuite() {
	require := s.Require()

	s.orm = idocker.StartupPostgreSQL(s.T())
	s.redisClient = idocker.StartupRedis(s.T())

	s.db = db.NewDatabase(s.orm)
	require.NoError(s.db.Initialize())

	unitDir := s.T().TempDir()
	writeUnit(s.T(), unitDir, "echo", `{"instructions":[
		{"op":"input"},
		{"op":"halt"}
	]}`)
	writeUnit(s.T(), unitDir, "slow", `{"instructions":[
		{"op":"sleep","arg":500},
		{"op":"const","arg":{"done":true}},
		{"op":"halt"}
	]}`)
	writeUnit(s.T(), unitDir, "broken", `{"instructions":[
		{"op":"const","arg":1},
		{"op":"const","arg":0},
		{"op":"div"},
		{"op":"halt"}
	]}`)

	logger := zap.NewNop()
	executor := sandbox.NewExecutor(unitDir, sandbox.Limits{
		Fuel:    1_000_000,
		Timeout: 200 * time.Millisecond,
	}, logger)

	cfg := DefaultConfig
	cfg.Pricing.CostPerCallCents = testCostCents
	cfg.RateLimit.AddressPerWindow = 5

	s.handler = NewHttpHandler(cfg, logger, s.db, s.redisClient, executor)
	s.router, _ = httpserver.Register(logger, s.handler)
}

func (s *HttpHandlerSuite) SetupTest() {
	require := s.Require()
	require.NoError(s.orm.Exec("DELETE FROM usage_records").Error)
	require.NoError(s.orm.Exec("DELETE FROM budgets").Error)
	require.NoError(s.orm.Exec("DELETE FROM casts").Error)
	require.NoError(s.redisClient.FlushAll(context.Background()).Err())
}

func TestHttpHandlerSuite(t *testing.T) {
	suite.Run(t, &HttpHandlerSuite{})
}

func writeUnit(t *testing.T, dir, name, program string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".unit"), []byte(program), 0o644); err != nil {
		t.Fatal(err)
	}
}

func doJSONRequest(router *echo.Echo, method, path, tenantID string, request, response interface{}) (*httptest.ResponseRecorder, error) {
	var r io.Reader
	if request != nil {
		out, err := json.Marshal(request)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(out)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Add("content-type", "application/json")
	if tenantID != "" {
		req.Header.Add(httpserver.XCastforgeTenantIDHeader, tenantID)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if response != nil {
		b, err := io.ReadAll(io.NopCloser(rec.Body))
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, response); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

func (s *HttpHandlerSuite) seedSpend(tenantID string, period db.BudgetPeriod, costCents int64) {
	start, end := budget.ActiveWindow(period, time.Now())
	s.Require().NoError(s.db.AccumulateUsage(context.Background(), tenantID, start, end, costCents))
}

func (s *HttpHandlerSuite) TestHealthz() {
	require := s.Require()

	response := map[string]any{}
	rec, err := doJSONRequest(s.router, echo.GET, "/healthz", "", nil, &response)
	require.NoError(err)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal("ok", response["status"])
}

func (s *HttpHandlerSuite) TestCastEcho() {
	require := s.Require()

	var response api.CastResponse
	rec, err := doJSONRequest(s.router, echo.POST, "/v1/cast", "tenant-1", api.CastRequest{
		UnitName: "echo",
		Payload:  json.RawMessage(`{"name":"ada"}`),
	}, &response)
	require.NoError(err)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal("COMPLETED", response.Status)
	require.JSONEq(`{"name":"ada"}`, string(response.Result))
	require.NotNil(response.FuelConsumed)
	require.Greater(*response.FuelConsumed, uint64(0))

	// The audit record is readable by its owner and invisible to others.
	var stored api.CastResponse
	rec, err = doJSONRequest(s.router, echo.GET, "/v1/cast/"+response.ID.String(), "tenant-1", nil, &stored)
	require.NoError(err)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal("COMPLETED", stored.Status)

	rec, err = doJSONRequest(s.router, echo.GET, "/v1/cast/"+response.ID.String(), "tenant-2", nil, nil)
	require.NoError(err)
	require.Equal(http.StatusNotFound, rec.Code)
}

func (s *HttpHandlerSuite) TestCastRecordsUsage() {
	require := s.Require()

	for i := 0; i < 2; i++ {
		rec, err := doJSONRequest(s.router, echo.POST, "/v1/cast", "tenant-1", api.CastRequest{
			UnitName: "echo",
			Payload:  json.RawMessage(`{}`),
		}, nil)
		require.NoError(err)
		require.Equal(http.StatusOK, rec.Code)
	}

	var usage api.UsageResponse
	rec, err := doJSONRequest(s.router, echo.GET, "/v1/budgets/usage", "tenant-1", nil, &usage)
	require.NoError(err)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(int64(2), usage.Calls)
	require.Equal(2*testCostCents, usage.CostCents)

	// Recorded calls reconcile against completed audit rows.
	completed, err := s.db.CountCompletedCasts(context.Background(), "tenant-1", usage.WindowStart, usage.WindowEnd)
	require.NoError(err)
	require.Equal(usage.Calls, completed)
}

func (s *HttpHandlerSuite) TestCastUnitNotFound() {
	require := s.Require()

	var response api.ErrorResponse
	rec, err := doJSONRequest(s.router, echo.POST, "/v1/cast", "tenant-1", api.CastRequest{
		UnitName: "missing",
		Payload:  json.RawMessage(`{}`),
	}, &response)
	require.NoError(err)
	require.Equal(http.StatusNotFound, rec.Code)
	require.Equal("UNIT_NOT_FOUND", response.ErrorCode)
	require.Equal("PERM_CONFIG", response.Category)
}

func (s *HttpHandlerSuite) TestCastMissingUnitName() {
	require := s.Require()

	var response api.ErrorResponse
	rec, err := doJSONRequest(s.router, echo.POST, "/v1/cast", "tenant-1",
		map[string]any{"payload": map[string]any{}}, &response)
	require.NoError(err)
	require.Equal(http.StatusUnprocessableEntity, rec.Code)
	require.Equal("INVALID_INPUT", response.ErrorCode)
}

func (s *HttpHandlerSuite) TestCastTimeout() {
	require := s.Require()

	var response api.ErrorResponse
	rec, err := doJSONRequest(s.router, echo.POST, "/v1/cast", "tenant-1", api.CastRequest{
		UnitName: "slow",
		Payload:  json.RawMessage(`{}`),
	}, &response)
	require.NoError(err)
	require.Equal(http.StatusRequestTimeout, rec.Code)
	require.Equal("EXEC_TIMEOUT", response.ErrorCode)
	require.Equal("TRANSIENT_RUNTIME", response.Category)

	// The failure is audited with its error code.
	var failed db.Cast
	require.NoError(s.orm.First(&failed).Error)
	require.Equal(db.CastStatusFailed, failed.Status)
	require.NotNil(failed.ErrorCode)
	require.Equal("EXEC_TIMEOUT", *failed.ErrorCode)
}

func (s *HttpHandlerSuite) TestCallerDisconnectPersistsFailure() {
	require := s.Require()

	body, err := json.Marshal(api.CastRequest{
		UnitName: "slow",
		Payload:  json.RawMessage(`{}`),
	})
	require.NoError(err)

	// The request context dies mid-execution, as it does when the caller
	// hangs up before the sandbox finishes.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(echo.POST, "/v1/cast", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Add("content-type", "application/json")
	req.Header.Add(httpserver.XCastforgeTenantIDHeader, "tenant-1")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	// The caller is gone but the audit row still reaches a terminal state.
	var failed db.Cast
	require.NoError(s.orm.First(&failed).Error)
	require.Equal(db.CastStatusFailed, failed.Status)
	require.NotNil(failed.ErrorCode)
	require.Equal("EXEC_TIMEOUT", *failed.ErrorCode)
}

func (s *HttpHandlerSuite) TestCastTrap() {
	require := s.Require()

	var response api.ErrorResponse
	rec, err := doJSONRequest(s.router, echo.POST, "/v1/cast", "tenant-1", api.CastRequest{
		UnitName: "broken",
		Payload:  json.RawMessage(`{}`),
	}, &response)
	require.NoError(err)
	require.Equal(http.StatusInternalServerError, rec.Code)
	require.Equal("EXEC_FAILED", response.ErrorCode)
	require.Equal("PERM_RUNTIME", response.Category)
}

func (s *HttpHandlerSuite) TestHardLimitBlocksCast() {
	require := s.Require()
	hard := int64(1000)

	rec, err := doJSONRequest(s.router, echo.POST, "/v1/budgets", "tenant-1", api.SetBudgetRequest{
		HardLimitCents: &hard,
	}, nil)
	require.NoError(err)
	require.Equal(http.StatusCreated, rec.Code)

	// One call's headroom left: the next cast is admitted and lands exactly
	// on the limit.
	s.seedSpend("tenant-1", db.BudgetPeriodMonthly, hard-testCostCents)

	rec, err = doJSONRequest(s.router, echo.POST, "/v1/cast", "tenant-1", api.CastRequest{
		UnitName: "echo",
		Payload:  json.RawMessage(`{}`),
	}, nil)
	require.NoError(err)
	require.Equal(http.StatusOK, rec.Code)

	var denied api.BudgetExceededResponse
	rec, err = doJSONRequest(s.router, echo.POST, "/v1/cast", "tenant-1", api.CastRequest{
		UnitName: "echo",
		Payload:  json.RawMessage(`{}`),
	}, &denied)
	require.NoError(err)
	require.Equal(http.StatusPaymentRequired, rec.Code)
	require.Equal("budget_exceeded", denied.Error)
	require.Equal(hard, denied.SpentCents)
	require.Equal(hard, denied.HardLimitCents)

	// The denied request left no audit row and no usage.
	var count int64
	require.NoError(s.orm.Model(&db.Cast{}).Count(&count).Error)
	require.Equal(int64(1), count)
}

func (s *HttpHandlerSuite) TestSoftLimitHeader() {
	require := s.Require()
	soft := int64(1000)

	rec, err := doJSONRequest(s.router, echo.POST, "/v1/budgets", "tenant-1", api.SetBudgetRequest{
		SoftLimitCents: &soft,
	}, nil)
	require.NoError(err)
	require.Equal(http.StatusCreated, rec.Code)

	s.seedSpend("tenant-1", db.BudgetPeriodMonthly, soft-testCostCents)

	// Crossing the soft limit warns but never blocks.
	rec, err = doJSONRequest(s.router, echo.POST, "/v1/cast", "tenant-1", api.CastRequest{
		UnitName: "echo",
		Payload:  json.RawMessage(`{}`),
	}, nil)
	require.NoError(err)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal("exceeded", rec.Header().Get("X-Budget-Soft-Limit"))
}

func (s *HttpHandlerSuite) TestAnonymousRateLimit() {
	require := s.Require()

	for i := 0; i < 5; i++ {
		rec, err := doJSONRequest(s.router, echo.POST, "/v1/cast", "", api.CastRequest{
			UnitName: "echo",
			Payload:  json.RawMessage(`{}`),
		}, nil)
		require.NoError(err)
		require.Equal(http.StatusOK, rec.Code, "request %d", i+1)
	}

	response := map[string]any{}
	rec, err := doJSONRequest(s.router, echo.POST, "/v1/cast", "", api.CastRequest{
		UnitName: "echo",
		Payload:  json.RawMessage(`{}`),
	}, &response)
	require.NoError(err)
	require.Equal(http.StatusTooManyRequests, rec.Code)
	require.Equal("rate_limited", response["error"])
	require.Equal(float64(60), response["retry_after"])
	require.Equal("60", rec.Header().Get("Retry-After"))

	// Health stays reachable for throttled callers.
	rec, err = doJSONRequest(s.router, echo.GET, "/healthz", "", nil, nil)
	require.NoError(err)
	require.Equal(http.StatusOK, rec.Code)
}

func (s *HttpHandlerSuite) TestBudgetCRUD() {
	require := s.Require()
	soft, hard := int64(2000), int64(5000)

	// No identity, no budget API.
	rec, err := doJSONRequest(s.router, echo.GET, "/v1/budgets", "", nil, nil)
	require.NoError(err)
	require.Equal(http.StatusUnauthorized, rec.Code)

	rec, err = doJSONRequest(s.router, echo.GET, "/v1/budgets", "tenant-1", nil, nil)
	require.NoError(err)
	require.Equal(http.StatusNotFound, rec.Code)

	var created api.BudgetResponse
	rec, err = doJSONRequest(s.router, echo.POST, "/v1/budgets", "tenant-1", api.SetBudgetRequest{
		SoftLimitCents: &soft,
		HardLimitCents: &hard,
	}, &created)
	require.NoError(err)
	require.Equal(http.StatusCreated, rec.Code)
	require.Equal("tenant-1", created.TenantID)
	require.Equal("monthly", created.Period)
	require.Equal(hard, *created.HardLimitCents)

	var updated api.BudgetResponse
	rec, err = doJSONRequest(s.router, echo.PUT, "/v1/budgets", "tenant-1", api.SetBudgetRequest{
		Period:         "daily",
		HardLimitCents: &hard,
	}, &updated)
	require.NoError(err)
	require.Equal(http.StatusCreated, rec.Code)
	require.Equal("daily", updated.Period)
	require.Nil(updated.SoftLimitCents)

	rec, err = doJSONRequest(s.router, echo.DELETE, "/v1/budgets", "tenant-1", nil, nil)
	require.NoError(err)
	require.Equal(http.StatusNoContent, rec.Code)

	rec, err = doJSONRequest(s.router, echo.GET, "/v1/budgets", "tenant-1", nil, nil)
	require.NoError(err)
	require.Equal(http.StatusNotFound, rec.Code)
}

func (s *HttpHandlerSuite) TestBudgetValidation() {
	require := s.Require()

	for name, req := range map[string]api.SetBudgetRequest{
		"below minimum":      {HardLimitCents: ptr(int64(500))},
		"above maximum":      {HardLimitCents: ptr(int64(60000))},
		"soft above hard":    {SoftLimitCents: ptr(int64(5000)), HardLimitCents: ptr(int64(2000))},
		"unsupported period": {Period: "weekly", HardLimitCents: ptr(int64(2000))},
	} {
		rec, err := doJSONRequest(s.router, echo.POST, "/v1/budgets", "tenant-1", req, nil)
		require.NoError(err, name)
		require.Equal(http.StatusBadRequest, rec.Code, name)
	}
}

func ptr[T any](v T) *T {
	return &v
}
