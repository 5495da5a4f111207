// Package config loads the planguard service configuration from the
// environment, optionally seeded from .env files.
package config
