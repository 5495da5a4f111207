package guard

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/quota"
	"github.com/dmitrymomot/planguard/pkg/usage"
)

const (
	DefaultFeatureTTL  = 5 * time.Minute
	DefaultQuotaTTL    = 10 * time.Second
	DefaultMaxQuantity = 1000
	DefaultUpgradeURL  = "/pricing"
)

// Resolver returns the effective plan of a principal.
type Resolver interface {
	Resolve(ctx context.Context, p entitlement.Principal) (entitlement.Resolution, error)
}

// Service is the entitlement and quota guard.
// It is safe for concurrent use; every call carries its own principal.
type Service struct {
	catalog  plan.Provider
	resolver Resolver
	store    quota.Store
	cache    decision.Cache
	recorder usage.Recorder
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time

	featureTTL  time.Duration
	quotaTTL    time.Duration
	maxQuantity int64
	upgradeURL  string
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the decision cache used for read-only checks.
func WithCache(c decision.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used to pick quota windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithRecorder receives a usage event for every consuming check.
func WithRecorder(r usage.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithFeatureTTL sets how long feature-gate decisions are cached.
func WithFeatureTTL(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.featureTTL = d
		}
	}
}

// WithQuotaTTL sets how long non-consuming quota snapshots are cached.
func WithQuotaTTL(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.quotaTTL = d
		}
	}
}

// WithMaxQuantity caps the quantity accepted by a single check.
func WithMaxQuantity(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxQuantity = n
		}
	}
}

// WithUpgradeURL sets the pricing page used by upsell prompts.
func WithUpgradeURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.upgradeURL = u
		}
	}
}

// New creates a guard over catalog, resolver and store.
func New(catalog plan.Provider, resolver Resolver, store quota.Store, opts ...Option) *Service {
	s := &Service{
		catalog:     catalog,
		resolver:    resolver,
		store:       store,
		cache:       decision.NoopCache{},
		tracer:      otel.Tracer("github.com/dmitrymomot/planguard/pkg/guard"),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		featureTTL:  DefaultFeatureTTL,
		quotaTTL:    DefaultQuotaTTL,
		maxQuantity: DefaultMaxQuantity,
		upgradeURL:  DefaultUpgradeURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type traceIDKey struct{}

// WithTraceID attaches a correlation id recorded on usage events.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceIDFromContext returns the id set by WithTraceID, or the id of the active span.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok && id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
