package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/planguard/internal/api"
	"github.com/dmitrymomot/planguard/internal/config"
	"github.com/dmitrymomot/planguard/migrations"
	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/guard"
	"github.com/dmitrymomot/planguard/pkg/httpserver"
	"github.com/dmitrymomot/planguard/pkg/jwt"
	"github.com/dmitrymomot/planguard/pkg/logger"
	"github.com/dmitrymomot/planguard/pkg/pg"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/planchange"
	"github.com/dmitrymomot/planguard/pkg/quota"
	"github.com/dmitrymomot/planguard/pkg/redis"
	"github.com/dmitrymomot/planguard/pkg/requestid"
	"github.com/dmitrymomot/planguard/pkg/usage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.AppEnv, cfg.AppName),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(requestid.LoggerExtractor(), jwt.LoggerExtractor()),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	source := plan.Source(plan.NewStaticSource(plan.DefaultDefinition()))
	if cfg.Catalog.File != "" {
		source = plan.NewFileSource(cfg.Catalog.File)
	}
	catalog, err := plan.NewHolder(ctx, source, plan.WithHolderLogger(log.With(logger.Component("catalog"))))
	if err != nil {
		return err
	}

	counters, err := quotaStore(cfg, deps)
	if err != nil {
		return err
	}
	if c, ok := counters.(interface{ Close() }); ok {
		defer c.Close()
	}
	assignments := assignmentStore(cfg, deps)
	cache := decisionCache(cfg, deps)

	resolver := entitlement.NewResolver(assignments, catalog,
		entitlement.WithResolverLogger(log.With(logger.Component("resolver"))),
		entitlement.WithPlanCacheTTL(cfg.Guard.PlanTTL),
		entitlement.WithLastKnownTTL(cfg.Guard.LastKnownTTL),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []guard.Option{
		guard.WithCache(cache),
		guard.WithLogger(log.With(logger.Component("guard"))),
		guard.WithMetrics(guard.NewMetrics(reg)),
		guard.WithFeatureTTL(cfg.Guard.FeatureTTL),
		guard.WithQuotaTTL(cfg.Guard.QuotaTTL),
		guard.WithMaxQuantity(cfg.Guard.MaxQuantity),
		guard.WithUpgradeURL(cfg.Guard.UpgradeURL),
	}
	var history api.History
	if cfg.Guard.RecordUsage {
		recorders := []usage.Recorder{usage.NewLogRecorder(log.With(logger.Component("usage")))}
		if deps.pool != nil {
			pgRecorder := usage.NewPostgresRecorder(deps.pool)
			recorders = append(recorders, pgRecorder)
			history = pgRecorder
		}
		opts = append(opts, guard.WithRecorder(usage.Multi(recorders...)))
	}
	svc := guard.New(catalog, resolver, counters, opts...)

	var listenerOpts []planchange.Option
	var notifier *planchange.RedisNotifier
	if deps.redis != nil {
		notifier = planchange.NewRedisNotifier(deps.redis,
			planchange.WithChannel(cfg.Billing.EventsChannel),
			planchange.WithNotifierLogger(log.With(logger.Component("planchange"))),
		)
		listenerOpts = append(listenerOpts, planchange.WithNotifier(notifier))
	}
	listener := planchange.NewListener(assignments, resolver, cache,
		append(listenerOpts, planchange.WithLogger(log.With(logger.Component("planchange"))))...)

	apiOpts := []api.Option{
		api.WithLogger(log.With(logger.Component("api"))),
		api.WithGatherer(reg),
		api.WithRateLimit(cfg.Limit.PerMinute, cfg.Limit.Burst),
		api.WithReadiness(deps.checks()),
		api.WithPlanEvents(listener, cfg.Billing.WebhookSecret, cfg.Billing.SignatureMaxAge),
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		apiOpts = append(apiOpts, api.WithCORS(cfg.CORS.AllowedOrigins...))
	}
	if history != nil {
		apiOpts = append(apiOpts, api.WithHistory(history))
	}
	if cfg.Auth.JWTSecret != "" {
		auth, err := jwt.New(cfg.Auth.JWTSecret, jwt.WithIssuer(cfg.Auth.Issuer), jwt.WithLeeway(cfg.Auth.Leeway))
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, api.WithAuth(auth))
	} else {
		log.WarnContext(ctx, "JWT_SECRET is empty, callers are identified by X-User-ID headers")
	}
	if cfg.Billing.WebhookSecret == "" {
		log.WarnContext(ctx, "BILLING_WEBHOOK_SECRET is empty, plan events will be rejected")
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Catalog.File != "" {
		g.Go(func() error {
			catalog.Watch(ctx, cfg.Catalog.ReloadInterval)
			return nil
		})
	}
	if notifier != nil {
		sub, err := notifier.Subscribe(ctx, listener)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return sub.Close()
		})
	}
	if pgCounters, ok := counters.(*quota.PostgresStore); ok {
		g.Go(func() error {
			purgeCounters(ctx, pgCounters, log)
			return nil
		})
	}

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log.With(logger.Component("http"))))
	g.Go(func() error {
		return srv.Run(ctx, api.New(svc, apiOpts...).Routes())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("planguard stopped")
	return nil
}

type dependencies struct {
	pool  *pgxpool.Pool
	redis *goredis.Client
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.Postgres.ConnectionString != "" {
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		deps.pool = pool
		if cfg.Postgres.AutoMigrate {
			if err := pg.Migrate(ctx, pool, migrations.FS, cfg.Postgres, log.With(logger.Component("migrate"))); err != nil {
				deps.close()
				return nil, err
			}
		}
	}

	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.redis = client
	}
	return deps, nil
}

func (d *dependencies) checks() map[string]httpserver.Check {
	checks := make(map[string]httpserver.Check, 2)
	if d.pool != nil {
		checks["postgres"] = pg.Healthcheck(d.pool)
	}
	if d.redis != nil {
		checks["redis"] = redis.Healthcheck(d.redis)
	}
	return checks
}

func (d *dependencies) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

func quotaStore(cfg config.Config, d *dependencies) (quota.Store, error) {
	switch cfg.Guard.QuotaStore {
	case config.BackendRedis:
		return quota.NewRedisStore(d.redis), nil
	case config.BackendPostgres:
		return quota.NewPostgresStore(d.pool), nil
	case config.BackendMemory:
		return quota.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("%w: quota store %q", config.ErrInvalidConfig, cfg.Guard.QuotaStore)
}

func assignmentStore(cfg config.Config, d *dependencies) entitlement.AssignmentStore {
	if cfg.Guard.AssignmentStore == config.BackendPostgres {
		return entitlement.NewPostgresStore(d.pool)
	}
	return entitlement.NewMemoryStore()
}

func decisionCache(cfg config.Config, d *dependencies) decision.Cache {
	if cfg.Guard.DecisionCache == config.BackendRedis {
		return decision.NewRedisCache(d.redis)
	}
	return decision.NewMemoryCache(cfg.Guard.CacheCapacity)
}

// purgeCounters drops counters of closed windows once a day.
func purgeCounters(ctx context.Context, s *quota.PostgresStore, log *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Purge(ctx, now.Add(-24*time.Hour))
			if err != nil {
				log.WarnContext(ctx, "quota counter purge failed", logger.Error(err))
				continue
			}
			log.InfoContext(ctx, "quota counters purged", slog.Int64("rows", n))
		}
	}
}
