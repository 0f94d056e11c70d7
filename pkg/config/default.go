package config

import "time"

type Postgres struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	DB       string `koanf:"db"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"ssl_mode"`
}

type Redis struct {
	Address  string `koanf:"address"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type HttpServer struct {
	Address string `koanf:"address"`
}

type Sandbox struct {
	// UnitPath is the directory holding compiled unit artifacts.
	UnitPath       string `koanf:"unit_path"`
	FuelLimit      uint64 `koanf:"fuel_limit"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

func (s Sandbox) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type Pricing struct {
	CostPerCallCents int64 `koanf:"cost_per_call_cents"`
}

type RateLimit struct {
	TenantPerWindow  int64 `koanf:"tenant_per_window"`
	AddressPerWindow int64 `koanf:"address_per_window"`
}
