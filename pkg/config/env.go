package config

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ReadFromEnv populates cfg from environment variables. Nested fields are
// addressed with a double underscore, e.g. POSTGRES__HOST maps to
// postgres.host. defaultValue, when non-nil, seeds the values the
// environment does not override.
func ReadFromEnv(cfg any, defaultValue any) error {
	k := koanf.New(".")

	if defaultValue != nil {
		if err := k.Load(structs.Provider(defaultValue, "koanf"), nil); err != nil {
			return err
		}
	}

	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return err
	}

	return k.Unmarshal("", cfg)
}
