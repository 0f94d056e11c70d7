package config

import (
	"os"
	"testing"
)

type testConfig struct {
	Str      string   `koanf:"str"`
	Int      int      `koanf:"int"`
	Postgres Postgres `koanf:"postgres"`
}

func TestReadFromEnv(t *testing.T) {
	os.Setenv("STR", "temp")
	os.Setenv("INT", "1")
	os.Setenv("POSTGRES__HOST", "db.local")

	var c testConfig
	if err := ReadFromEnv(&c, nil); err != nil {
		t.Fatal(err)
	}

	if c.Str != "temp" || c.Int != 1 || c.Postgres.Host != "db.local" {
		t.FailNow()
	}
}

func TestReadFromEnvDefaults(t *testing.T) {
	os.Unsetenv("POSTGRES__PORT")

	var c testConfig
	err := ReadFromEnv(&c, testConfig{Postgres: Postgres{Port: "5432"}})
	if err != nil {
		t.Fatal(err)
	}

	if c.Postgres.Port != "5432" {
		t.Fatalf("expected default port, got %q", c.Postgres.Port)
	}
}
