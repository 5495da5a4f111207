package planchange

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/logger"
)

// Appender stores plan assignments.
type Appender interface {
	Append(ctx context.Context, a entitlement.Assignment) error
}

// PlanCache drops cached plan data of a subject.
type PlanCache interface {
	Invalidate(s entitlement.Subject)
}

// Notifier tells other instances that a subject's plan changed.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Listener applies plan transitions and keeps local caches coherent.
type Listener struct {
	store    Appender
	plans    PlanCache
	cache    decision.Cache
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Listener.
type Option func(*Listener)

// WithNotifier publishes applied events to peers.
func WithNotifier(n Notifier) Option {
	return func(l *Listener) { l.notifier = n }
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Listener) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithClock sets the time used for events without EffectiveAt.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) {
		if now != nil {
			l.now = now
		}
	}
}

// NewListener creates a listener. A nil cache is treated as no cache.
func NewListener(store Appender, plans PlanCache, cache decision.Cache, opts ...Option) *Listener {
	if cache == nil {
		cache = decision.NoopCache{}
	}
	l := &Listener{
		store:  store,
		plans:  plans,
		cache:  cache,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Handle records ev as a new plan assignment and invalidates every cached
// decision of its subject. Redelivered events are accepted without effect.
//
// Counters are left alone: usage spent under the old plan stands and the new
// limits apply to attempts made from EffectiveAt on.
func (l *Listener) Handle(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.EffectiveAt.IsZero() {
		ev.EffectiveAt = l.now()
	}
	subject := ev.Subject()

	err := l.store.Append(ctx, entitlement.Assignment{
		Subject:       subject,
		Tier:          ev.NewTier,
		EffectiveFrom: ev.EffectiveAt,
		EventID:       ev.ID,
		Source:        ev.Source,
	})
	switch {
	case errors.Is(err, entitlement.ErrDuplicateEvent):
		l.logger.InfoContext(ctx, "duplicate plan change event ignored",
			logger.Event(ev.ID), logger.Subject(subject.Key()))
		return nil
	case err != nil:
		return err
	}

	l.logger.InfoContext(ctx, "plan changed",
		logger.Event(ev.ID),
		logger.Subject(subject.Key()),
		slog.String("old_tier", string(ev.OldTier)),
		logger.Tier(ev.NewTier),
		slog.Time("effective_at", ev.EffectiveAt),
		slog.Bool("downgrade", ev.Downgrade()),
	)

	if err := l.Invalidate(ctx, subject); err != nil {
		return err
	}

	if l.notifier != nil {
		if err := l.notifier.Notify(ctx, ev); err != nil {
			l.logger.WarnContext(ctx, "peers not notified of plan change",
				logger.Subject(subject.Key()), logger.Error(err))
		}
	}
	return nil
}

// Invalidate drops plan data and cached decisions of subject in this process.
// Plan data goes first so no decision is rebuilt from the old plan.
func (l *Listener) Invalidate(ctx context.Context, subject entitlement.Subject) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	if l.plans != nil {
		l.plans.Invalidate(subject)
	}
	if err := l.cache.InvalidateSubject(ctx, subject.Key()); err != nil {
		l.logger.ErrorContext(ctx, "decision cache invalidation failed",
			logger.Subject(subject.Key()), logger.Error(err))
		return err
	}
	return nil
}
