package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from process environment variables.
func ParseEnv(target any) error {
	return ParseEnvFrom(target, nil)
}

// ParseEnvFrom loads configuration from environ when it is non-nil, falling
// back to the process environment otherwise.
//
// Durations use time.ParseDuration syntax and slices split on commas unless a
// field sets envSeparator.
func ParseEnvFrom(target any, environ map[string]string) error {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
