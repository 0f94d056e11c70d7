package cast

import (
	"context"
	"net/http"
	"time"

	"github.com/castforge/castforge/pkg/budget"
	"github.com/castforge/castforge/pkg/cast/api"
	casterrors "github.com/castforge/castforge/pkg/cast/errors"
	"github.com/castforge/castforge/pkg/db"
	"github.com/castforge/castforge/pkg/internal/httpserver"
	"github.com/castforge/castforge/pkg/metrics"
	"github.com/castforge/castforge/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Version is injected at build time.
var Version = "dev"

// Budget limits callers may configure, in cents ($10 - $500).
const (
	minBudgetCents int64 = 1000
	maxBudgetCents int64 = 50000
)

func (h *HttpHandler) Register(r *echo.Echo) {
	r.Use(ratelimit.Middleware(h.limiter, h.cfg.RateLimit, h.logger))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/cast", h.CreateCast)
	v1.GET("/cast/:id", h.GetCast)
	v1.GET("/budgets", h.GetBudget)
	v1.POST("/budgets", h.SetBudget)
	v1.PUT("/budgets", h.SetBudget)
	v1.DELETE("/budgets", h.DeleteBudget)
	v1.GET("/budgets/usage", h.GetBudgetUsage)
}

func bindValidate(ctx echo.Context, i interface{}) error {
	if err := ctx.Bind(i); err != nil {
		return err
	}

	if err := ctx.Validate(i); err != nil {
		return err
	}

	return nil
}

func castErrorJSON(ctx echo.Context, cerr *casterrors.CastError) error {
	return ctx.JSON(cerr.Status, api.ErrorResponse{
		Error:     cerr.Message,
		ErrorCode: cerr.Code,
		Category:  string(cerr.Category),
	})
}

// Healthz godoc
//
//	@Summary		Liveness probe
//	@Description	Reports service health; exempt from rate limiting
//	@Produce		json
//	@Success		200
//	@Router			/healthz [get]
func (h *HttpHandler) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{
		"status":  "ok",
		"version": Version,
	})
}

// CreateCast godoc
//
//	@Summary		Executes a named compute unit with a JSON payload
//	@Description	Admits the request through the rate limiter and budget gate, runs the unit in the sandbox and records the outcome
//	@Tags			cast
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	api.CastResponse
//	@Failure		402	{object}	api.BudgetExceededResponse
//	@Failure		429
//	@Router			/v1/cast [post]
func (h *HttpHandler) CreateCast(ctx echo.Context) error {
	var req api.CastRequest
	if err := bindValidate(ctx, &req); err != nil {
		return castErrorJSON(ctx, casterrors.InvalidInput("unit_name is required and the body must be valid JSON"))
	}

	rc := ctx.Request().Context()
	// Terminal cast updates and usage recording must survive a caller
	// disconnect, which cancels rc mid-execution. Only admission and the
	// sandbox run stay tied to the request.
	pc := context.WithoutCancel(rc)
	tenantID := httpserver.GetTenantID(ctx)
	metrics.CastTotal.Inc()

	// Budget admission runs before any execution cost is incurred. A store
	// outage here fails closed.
	var check budget.CheckResult
	if tenantID != "" {
		var err error
		check, err = h.gate.CheckHardLimit(rc, tenantID)
		if err != nil {
			h.logger.Error("budget check failed", zap.String("tenant_id", tenantID), zap.Error(err))
			return castErrorJSON(ctx, casterrors.Database(err))
		}
		if !check.Allowed {
			metrics.BudgetBlockedTotal.Inc()
			return ctx.JSON(http.StatusPaymentRequired, api.BudgetExceededResponse{
				Error:          "budget_exceeded",
				Period:         string(check.Period),
				HardLimitCents: check.HardLimitCents,
				SpentCents:     check.SpentCents,
			})
		}
	}

	// Audit-first: the cast row exists before the sandbox runs, so no
	// admitted request can disappear without a trace.
	castID := uuid.New()
	createdAt := time.Now().UTC()
	row := &db.Cast{
		ID:        castID,
		UnitName:  req.UnitName,
		Payload:   datatypes.JSON(req.Payload),
		Status:    db.CastStatusQueued,
		CreatedAt: createdAt,
	}
	if tenantID != "" {
		row.TenantID = &tenantID
	}
	if err := h.db.CreateCast(pc, row); err != nil {
		h.logger.Error("create cast", zap.String("cast_id", castID.String()), zap.Error(err))
		return castErrorJSON(ctx, casterrors.Database(err))
	}

	h.logger.Info("cast starting",
		zap.String("cast_id", castID.String()),
		zap.String("unit", req.UnitName))

	start := time.Now()
	res, execErr := h.executor.Execute(rc, req.UnitName, req.Payload)
	metrics.CastDuration.Observe(time.Since(start).Seconds())

	if execErr != nil {
		cerr := casterrors.FromSandbox(execErr)
		if err := h.db.FailCast(pc, castID, cerr.Code); err != nil {
			h.logger.Error("persist cast failure", zap.String("cast_id", castID.String()), zap.Error(err))
		}
		metrics.CastFailed.WithLabelValues(cerr.Code).Inc()
		h.logger.Error("cast failed",
			zap.String("cast_id", castID.String()),
			zap.String("error_code", cerr.Code),
			zap.Error(execErr))
		return castErrorJSON(ctx, cerr)
	}

	if err := h.db.CompleteCast(pc, castID, datatypes.JSON(res.Output)); err != nil {
		h.logger.Error("persist cast result", zap.String("cast_id", castID.String()), zap.Error(err))
		return castErrorJSON(ctx, casterrors.Database(err))
	}

	metrics.SandboxFuelConsumed.Observe(float64(res.FuelConsumed))

	if tenantID != "" {
		// Best effort: the execution result is already authoritative, a
		// recording failure is reconciled out-of-band.
		if err := h.ledger.Record(pc, tenantID, h.costPerCallCents, castID); err != nil {
			metrics.UsageRecordFailuresTotal.Inc()
			h.logger.Error("usage recording failed, needs reconciliation",
				zap.String("tenant_id", tenantID),
				zap.String("cast_id", castID.String()),
				zap.Error(err))
		}
		if check.SoftExceeded(h.costPerCallCents) {
			ctx.Response().Header().Set("X-Budget-Soft-Limit", "exceeded")
		}
	}

	h.logger.Info("cast completed",
		zap.String("cast_id", castID.String()),
		zap.Uint64("fuel_consumed", res.FuelConsumed))

	return ctx.JSON(http.StatusOK, api.CastResponse{
		ID:           castID,
		Status:       string(db.CastStatusCompleted),
		Result:       res.Output,
		FuelConsumed: &res.FuelConsumed,
		CreatedAt:    createdAt,
	})
}

// GetCast godoc
//
//	@Summary		Returns the audit record of one cast
//	@Tags			cast
//	@Produce		json
//	@Success		200	{object}	api.CastResponse
//	@Router			/v1/cast/{id} [get]
func (h *HttpHandler) GetCast(ctx echo.Context) error {
	tenantID, err := httpserver.RequireTenant(ctx)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cast id")
	}

	cast, err := h.db.GetCast(ctx.Request().Context(), id)
	if err != nil {
		return castErrorJSON(ctx, casterrors.Database(err))
	}
	if cast == nil || cast.TenantID == nil || *cast.TenantID != tenantID {
		return echo.NewHTTPError(http.StatusNotFound, "cast not found")
	}

	return ctx.JSON(http.StatusOK, api.CastResponse{
		ID:        cast.ID,
		Status:    string(cast.Status),
		Result:    []byte(cast.Result),
		ErrorCode: cast.ErrorCode,
		CreatedAt: cast.CreatedAt,
	})
}

// GetBudget godoc
//
//	@Summary		Returns the tenant's spend policy
//	@Tags			budgets
//	@Produce		json
//	@Success		200	{object}	api.BudgetResponse
//	@Router			/v1/budgets [get]
func (h *HttpHandler) GetBudget(ctx echo.Context) error {
	tenantID, err := httpserver.RequireTenant(ctx)
	if err != nil {
		return err
	}

	b, err := h.db.GetBudget(ctx.Request().Context(), tenantID)
	if err != nil {
		return castErrorJSON(ctx, casterrors.Database(err))
	}
	if b == nil {
		return ctx.JSON(http.StatusNotFound, echo.Map{"error": "no budget configured"})
	}

	return ctx.JSON(http.StatusOK, budgetResponse(b))
}

// SetBudget godoc
//
//	@Summary		Creates or replaces the tenant's spend policy
//	@Tags			budgets
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	api.BudgetResponse
//	@Router			/v1/budgets [post]
func (h *HttpHandler) SetBudget(ctx echo.Context) error {
	tenantID, err := httpserver.RequireTenant(ctx)
	if err != nil {
		return err
	}

	var req api.SetBudgetRequest
	if err := bindValidate(ctx, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid budget request")
	}

	if err := validateBudgetLimits(req); err != nil {
		return err
	}

	period := db.BudgetPeriod(req.Period)
	if period == "" {
		period = db.BudgetPeriodMonthly
	}

	now := time.Now().UTC()
	b := &db.Budget{
		TenantID:       tenantID,
		Period:         period,
		SoftLimitCents: req.SoftLimitCents,
		HardLimitCents: req.HardLimitCents,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.db.UpsertBudget(ctx.Request().Context(), b); err != nil {
		return castErrorJSON(ctx, casterrors.Database(err))
	}

	stored, err := h.db.GetBudget(ctx.Request().Context(), tenantID)
	if err != nil || stored == nil {
		return castErrorJSON(ctx, casterrors.Database(err))
	}

	return ctx.JSON(http.StatusCreated, budgetResponse(stored))
}

// DeleteBudget godoc
//
//	@Summary		Removes the tenant's spend policy
//	@Tags			budgets
//	@Success		204
//	@Router			/v1/budgets [delete]
func (h *HttpHandler) DeleteBudget(ctx echo.Context) error {
	tenantID, err := httpserver.RequireTenant(ctx)
	if err != nil {
		return err
	}

	if err := h.db.DeleteBudget(ctx.Request().Context(), tenantID); err != nil {
		return castErrorJSON(ctx, casterrors.Database(err))
	}

	return ctx.NoContent(http.StatusNoContent)
}

// GetBudgetUsage godoc
//
//	@Summary		Returns usage for the tenant's active budget window
//	@Tags			budgets
//	@Produce		json
//	@Success		200	{object}	api.UsageResponse
//	@Router			/v1/budgets/usage [get]
func (h *HttpHandler) GetBudgetUsage(ctx echo.Context) error {
	tenantID, err := httpserver.RequireTenant(ctx)
	if err != nil {
		return err
	}

	rc := ctx.Request().Context()
	period := db.BudgetPeriodMonthly
	if b, err := h.db.GetBudget(rc, tenantID); err != nil {
		return castErrorJSON(ctx, casterrors.Database(err))
	} else if b != nil {
		period = b.Period
	}

	start, end := budget.ActiveWindow(period, time.Now())
	calls, costCents, err := h.db.SumUsage(rc, tenantID, start, end)
	if err != nil {
		return castErrorJSON(ctx, casterrors.Database(err))
	}

	return ctx.JSON(http.StatusOK, api.UsageResponse{
		Period:      string(period),
		WindowStart: start,
		WindowEnd:   end,
		Calls:       calls,
		CostCents:   costCents,
	})
}

func budgetResponse(b *db.Budget) api.BudgetResponse {
	return api.BudgetResponse{
		TenantID:       b.TenantID,
		Period:         string(b.Period),
		SoftLimitCents: b.SoftLimitCents,
		HardLimitCents: b.HardLimitCents,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func validateBudgetLimits(req api.SetBudgetRequest) error {
	for _, limit := range []*int64{req.SoftLimitCents, req.HardLimitCents} {
		if limit != nil && (*limit < minBudgetCents || *limit > maxBudgetCents) {
			return echo.NewHTTPError(http.StatusBadRequest,
				"budget limits must be between 1000 and 50000 cents")
		}
	}
	if req.SoftLimitCents != nil && req.HardLimitCents != nil && *req.SoftLimitCents > *req.HardLimitCents {
		return echo.NewHTTPError(http.StatusBadRequest, "soft limit cannot exceed hard limit")
	}
	return nil
}
