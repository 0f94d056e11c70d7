package cast

import (
	"context"
	"fmt"

	"github.com/castforge/castforge/pkg/config"
	"github.com/castforge/castforge/pkg/internal/httpserver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type Config struct {
	Postgres  config.Postgres   `koanf:"postgres"`
	Redis     config.Redis      `koanf:"redis"`
	Http      config.HttpServer `koanf:"http"`
	Sandbox   config.Sandbox    `koanf:"sandbox"`
	Pricing   config.Pricing    `koanf:"pricing"`
	RateLimit config.RateLimit  `koanf:"rate_limit"`
}

var DefaultConfig = Config{
	Postgres: config.Postgres{
		Host:    "localhost",
		Port:    "5432",
		DB:      "castforge",
		SSLMode: "disable",
	},
	Redis: config.Redis{
		Address: "localhost:6379",
	},
	Http: config.HttpServer{
		Address: "0.0.0.0:8080",
	},
	Sandbox: config.Sandbox{
		UnitPath:       "./units",
		FuelLimit:      100_000_000,
		TimeoutSeconds: 5,
	},
	Pricing: config.Pricing{
		CostPerCallCents: 1,
	},
	RateLimit: config.RateLimit{
		TenantPerWindow:  60,
		AddressPerWindow: 10,
	},
}

func Command() *cobra.Command {
	var cnf Config

	return &cobra.Command{
		Use: "cast-service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ReadFromEnv(&cnf, DefaultConfig)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return start(cmd.Context(), cnf)
		},
	}
}

func start(ctx context.Context, cnf Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("new logger: %w", err)
	}

	handler, err := InitializeHttpHandler(cnf, logger)
	if err != nil {
		return fmt.Errorf("init http handler: %w", err)
	}

	return httpserver.RegisterAndStart(logger, cnf.Http.Address, handler)
}
