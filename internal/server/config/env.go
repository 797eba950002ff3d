package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// envPrefix namespaces every variable, e.g. GOPHAUDIO_DATABASE_DSN.
const envPrefix = "GOPHAUDIO_"

// parseEnv overlays variables that are set; unset ones keep current values.
func parseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("failed to parse env: %w", err)
	}
	return nil
}
