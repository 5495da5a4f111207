package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/planguard/pkg/httpserver"
	"github.com/dmitrymomot/planguard/pkg/pg"
	"github.com/dmitrymomot/planguard/pkg/redis"
)

// Backend names accepted by the *_STORE and DECISION_CACHE settings.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	AppName  string `env:"APP_NAME" envDefault:"planguard"`
	LogLevel string `env:"LOG_LEVEL"`

	HTTP     httpserver.Config
	Postgres pg.Config
	Redis    redis.Config
	Guard    Guard
	Catalog  Catalog
	Auth     Auth
	Billing  Billing
	Limit    RateLimit
	CORS     CORS
}

// Guard selects backends and cache tuning.
type Guard struct {
	QuotaStore      string        `env:"QUOTA_STORE" envDefault:"memory"`
	AssignmentStore string        `env:"ASSIGNMENT_STORE" envDefault:"memory"`
	DecisionCache   string        `env:"DECISION_CACHE" envDefault:"memory"`
	CacheCapacity   int           `env:"DECISION_CACHE_CAPACITY" envDefault:"10000"`
	FeatureTTL      time.Duration `env:"FEATURE_CACHE_TTL" envDefault:"5m"`
	QuotaTTL        time.Duration `env:"QUOTA_CACHE_TTL" envDefault:"10s"`
	PlanTTL         time.Duration `env:"PLAN_CACHE_TTL" envDefault:"5m"`
	LastKnownTTL    time.Duration `env:"PLAN_LAST_KNOWN_TTL" envDefault:"24h"`
	MaxQuantity     int64         `env:"MAX_QUANTITY" envDefault:"1000"`
	UpgradeURL      string        `env:"UPGRADE_URL" envDefault:"/pricing"`
	RecordUsage     bool          `env:"RECORD_USAGE" envDefault:"true"`
}

// Catalog points at an optional YAML plan definition.
type Catalog struct {
	File           string        `env:"CATALOG_FILE"`
	ReloadInterval time.Duration `env:"CATALOG_RELOAD_INTERVAL" envDefault:"30s"`
}

// Auth configures bearer token verification.
type Auth struct {
	JWTSecret string        `env:"JWT_SECRET"`
	Issuer    string        `env:"JWT_ISSUER"`
	Leeway    time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`
}

// Billing configures the plan event webhook and peer fan-out.
type Billing struct {
	WebhookSecret   string        `env:"BILLING_WEBHOOK_SECRET"`
	SignatureMaxAge time.Duration `env:"BILLING_SIGNATURE_MAX_AGE" envDefault:"5m"`
	EventsChannel   string        `env:"PLAN_EVENTS_CHANNEL" envDefault:"planguard:plan-changes"`
}

// RateLimit bounds requests per authenticated user.
type RateLimit struct {
	PerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	Burst     int `env:"RATE_LIMIT_BURST" envDefault:"60"`
}

// CORS lists browser origins allowed to call the API.
type CORS struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads .env files and the environment into a validated Config.
func Load(envFiles ...string) (Config, error) {
	if err := LoadEnv(envFiles...); err != nil {
		return Config{}, err
	}
	cfg, err := Parse[Config]()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Production reports whether the service runs in a production-like environment.
func (c Config) Production() bool {
	return c.AppEnv == "production" || c.AppEnv == "staging"
}

// Validate checks backend names and that the selected backends are configured.
func (c Config) Validate() error {
	var errs []error

	check := func(key, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unsupported backend %q", key, value))
	}
	check("QUOTA_STORE", c.Guard.QuotaStore, BackendMemory, BackendRedis, BackendPostgres)
	check("ASSIGNMENT_STORE", c.Guard.AssignmentStore, BackendMemory, BackendPostgres)
	check("DECISION_CACHE", c.Guard.DecisionCache, BackendMemory, BackendRedis)

	if c.NeedsPostgres() && c.Postgres.ConnectionString == "" {
		errs = append(errs, errors.New("PG_CONN_URL is required by the selected backends"))
	}
	if c.NeedsRedis() && !c.Redis.Enabled() {
		errs = append(errs, errors.New("REDIS_URL is required by the selected backends"))
	}
	if c.Production() && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.Guard.MaxQuantity <= 0 {
		errs = append(errs, errors.New("MAX_QUANTITY must be positive"))
	}
	if c.Limit.PerMinute < 0 || c.Limit.Burst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// NeedsPostgres reports whether a selected backend lives in Postgres.
func (c Config) NeedsPostgres() bool {
	return c.Guard.QuotaStore == BackendPostgres || c.Guard.AssignmentStore == BackendPostgres
}

// NeedsRedis reports whether a selected backend lives in Redis.
func (c Config) NeedsRedis() bool {
	return c.Guard.QuotaStore == BackendRedis || c.Guard.DecisionCache == BackendRedis
}
