package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Initialize loads, defaults, and validates configuration from path.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the YAML file (an empty path means all-defaults; a missing file
//     is an ErrConfigNotFound error)
//  2. Expand environment variables
//  3. Parse YAML into the Config struct
//  4. Apply default values for everything unset
//  5. Validate the result
func Initialize(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, NewLoadError(path, err)
		}
	}

	cfg.ApplyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	slog.Info("Configuration initialized",
		"audit_enabled", cfg.AuditEnabled(),
		"synchronous", cfg.Synchronous(),
		"audit_timeout", cfg.Audit.Timeout,
		"max_concurrent_audits", cfg.Process.MaxConcurrent,
		"state_dir", cfg.Sessions.StateDir)

	return cfg, nil
}

func loadYAML(path string, target *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}
