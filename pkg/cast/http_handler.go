package cast

import (
	"context"
	"fmt"

	"github.com/castforge/castforge/pkg/budget"
	"github.com/castforge/castforge/pkg/db"
	"github.com/castforge/castforge/pkg/internal/postgres"
	"github.com/castforge/castforge/pkg/ratelimit"
	"github.com/castforge/castforge/pkg/sandbox"
	"github.com/castforge/castforge/pkg/usage"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type HttpHandler struct {
	cfg    Config
	logger *zap.Logger

	db       db.Database
	limiter  *ratelimit.Limiter
	gate     *budget.Gate
	ledger   *usage.Ledger
	executor *sandbox.Executor

	costPerCallCents int64
}

func InitializeHttpHandler(cfg Config, logger *zap.Logger) (*HttpHandler, error) {
	orm, err := postgres.NewClient(&cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("new postgres client: %w", err)
	}
	logger.Info("connected to the postgres database", zap.String("database", cfg.Postgres.DB))

	database := db.NewDatabase(orm)
	if err := database.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("connected to redis", zap.String("address", cfg.Redis.Address))

	executor := sandbox.NewExecutor(cfg.Sandbox.UnitPath, sandbox.Limits{
		Fuel:    cfg.Sandbox.FuelLimit,
		Timeout: cfg.Sandbox.Timeout(),
	}, logger)

	return NewHttpHandler(cfg, logger, database, rdb, executor), nil
}

func NewHttpHandler(cfg Config, logger *zap.Logger, database db.Database, rdb *redis.Client, executor *sandbox.Executor) *HttpHandler {
	costPerCall := cfg.Pricing.CostPerCallCents
	if costPerCall == 0 {
		costPerCall = 1
	}

	return &HttpHandler{
		cfg:              cfg,
		logger:           logger,
		db:               database,
		limiter:          ratelimit.NewLimiter(rdb),
		gate:             budget.NewGate(database, logger),
		ledger:           usage.NewLedger(database, logger),
		executor:         executor,
		costPerCallCents: costPerCall,
	}
}
