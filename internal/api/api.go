package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/guard"
	"github.com/dmitrymomot/planguard/pkg/httpserver"
	"github.com/dmitrymomot/planguard/pkg/jwt"
	"github.com/dmitrymomot/planguard/pkg/logger"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/planchange"
	"github.com/dmitrymomot/planguard/pkg/quota"
	"github.com/dmitrymomot/planguard/pkg/requestid"
	"github.com/dmitrymomot/planguard/pkg/usage"
)

// Guard is the subset of guard.Service served over HTTP.
type Guard interface {
	Check(ctx context.Context, p entitlement.Principal, a plan.Action, quantity int64) (decision.Decision, error)
	Peek(ctx context.Context, p entitlement.Principal, a plan.Action, quantity int64) (decision.Decision, error)
	Release(ctx context.Context, p entitlement.Principal, r quota.Reservation) (int64, error)
	HasFeature(ctx context.Context, p entitlement.Principal, f plan.Feature) (decision.Decision, error)
	Usage(ctx context.Context, p entitlement.Principal, a plan.Action) (guard.Usage, error)
	UpgradeInfo(ctx context.Context, p entitlement.Principal, f plan.Feature) (*entitlement.UpgradeInfo, error)
	PlanInfo(ctx context.Context, p entitlement.Principal) (guard.PlanInfo, error)
	Upsell(d decision.Decision) *guard.Upsell
	UsageWarning(u guard.Usage) *guard.Upsell
}

// PlanEvents applies billing plan transitions.
type PlanEvents interface {
	Handle(ctx context.Context, ev planchange.Event) error
}

// History lists recent usage events of a quota subject.
type History interface {
	Recent(ctx context.Context, subject string, limit uint64) ([]usage.Event, error)
}

// Server is the guard HTTP API.
type Server struct {
	guard         Guard
	events        PlanEvents
	history       History
	auth          *jwt.Service
	webhookSecret string
	signatureAge  time.Duration
	limiter       *KeyedLimiter
	checks        map[string]httpserver.Check
	corsOrigins   []string
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAuth verifies bearer tokens. Without it the caller is taken from the
// X-User-ID and X-Team-ID headers, which is only fit for local development.
func WithAuth(s *jwt.Service) Option {
	return func(srv *Server) { srv.auth = s }
}

// WithPlanEvents mounts the signed billing webhook.
func WithPlanEvents(h PlanEvents, secret string, maxAge time.Duration) Option {
	return func(srv *Server) {
		srv.events = h
		srv.webhookSecret = secret
		srv.signatureAge = maxAge
	}
}

// WithHistory mounts the usage event listing.
func WithHistory(h History) Option {
	return func(srv *Server) { srv.history = h }
}

// WithRateLimit limits each caller to perMinute requests with the given burst.
func WithRateLimit(perMinute, burst int) Option {
	return func(srv *Server) {
		if perMinute > 0 {
			srv.limiter = NewKeyedLimiter(perMinute, burst)
		}
	}
}

// WithReadiness adds dependency checks to /health/ready.
func WithReadiness(checks map[string]httpserver.Check) Option {
	return func(srv *Server) { srv.checks = checks }
}

// WithCORS allows browser clients from origins to call the API.
func WithCORS(origins ...string) Option {
	return func(srv *Server) { srv.corsOrigins = origins }
}

// WithGatherer exposes metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(srv *Server) { srv.gatherer = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(srv *Server) {
		if now != nil {
			srv.now = now
		}
	}
}

// New creates the API server.
func New(g Guard, opts ...Option) *Server {
	s := &Server{
		guard:    g,
		gatherer: prometheus.DefaultGatherer,
		logger:   logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		requestid.New(requestid.WithHook(guard.WithTraceID)),
		s.accessLog,
		s.recoverer,
	)

	r.Get("/health", httpserver.Liveness)
	r.Get("/health/ready", httpserver.Readiness(s.logger, 2*time.Second, s.checks))
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			if s.limiter != nil {
				r.Use(s.rateLimit)
			}
			r.Use(middleware.AllowContentType("application/json"))

			r.Post("/guard/check", s.handleCheck)
			r.Post("/guard/peek", s.handlePeek)
			r.Post("/guard/release", s.handleRelease)
			r.Get("/guard/usage", s.handleUsage)
			r.Get("/guard/features/{feature}", s.handleFeature)
			r.Get("/guard/upgrade", s.handleUpgrade)
			r.Get("/guard/plan", s.handlePlan)
			if s.history != nil {
				r.Get("/guard/events", s.handleEvents)
			}
		})

		if s.events != nil {
			r.Post("/billing/plan-events", s.handlePlanEvent)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeError(w, errNotFound) })

	if len(s.corsOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestid.Header},
		ExposedHeaders: []string{requestid.Header, "Retry-After"},
	}).Handler(r)
}
