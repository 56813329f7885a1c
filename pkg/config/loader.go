package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses process environment variables into cfg, which must be a
// pointer to a struct using `env` tags.
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadFrom parses cfg from an explicit variable set instead of the process
// environment. Variables missing from vars fall back to envDefault.
func LoadFrom(cfg any, vars map[string]string) error {
	opts := env.Options{Environment: vars}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
