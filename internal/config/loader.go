package config

import (
	"errors"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadEnv loads the given env files into the process environment. Later files
// override earlier ones; variables already set by the process win over both.
// With no paths it loads ./.env when present.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		paths = []string{".env"}
	}

	preset := make(map[string]bool)
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok {
			preset[k] = true
		}
	}

	for _, p := range paths {
		vals, err := godotenv.Read(p)
		if err != nil {
			return errors.Join(ErrLoadingEnv, err)
		}
		for k, v := range vals {
			if preset[k] {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return errors.Join(ErrLoadingEnv, err)
			}
		}
	}
	return nil
}

// Parse fills a T from the environment using env struct tags.
func Parse[T any]() (T, error) {
	var v T
	if err := env.Parse(&v); err != nil {
		return v, errors.Join(ErrParsingConfig, err)
	}
	return v, nil
}

// ParseFrom is Parse over an explicit variable set instead of the process
// environment.
func ParseFrom[T any](vars map[string]string) (T, error) {
	var v T
	if err := env.ParseWithOptions(&v, env.Options{Environment: vars}); err != nil {
		return v, errors.Join(ErrParsingConfig, err)
	}
	return v, nil
}
