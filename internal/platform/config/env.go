// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every env tag parsed by ParseEnv.
const EnvPrefix = "ROUNDTABLE_"

// ParseEnv loads configuration from ROUNDTABLE_-prefixed environment
// variables into target, honouring envDefault tags.
func ParseEnv(target any) error {
	return ParseEnvWithPrefix(target, EnvPrefix)
}

// ParseEnvWithPrefix is ParseEnv with a custom prefix.
func ParseEnvWithPrefix(target any, prefix string) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
