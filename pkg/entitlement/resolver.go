package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/planguard/pkg/plan"
)

// Resolution is the effective plan of a principal at one moment.
type Resolution struct {
	Tier plan.Tier `json:"tier"`
	// Subject carries every quota counter for the principal.
	Subject  Subject `json:"subject"`
	TeamPlan bool    `json:"team_plan"`
	// Stale is set when plan data came from the last-known copy because the store failed.
	Stale bool `json:"stale,omitempty"`
}

// UpgradeInfo tells the caller how to obtain a feature it lacks.
type UpgradeInfo struct {
	Feature      plan.Feature `json:"feature"`
	CurrentPlan  plan.Tier    `json:"current_plan"`
	RequiredPlan plan.Tier    `json:"required_plan"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	UpgradeURL   string       `json:"upgrade_url"`
}

// Resolver computes effective plans and answers feature-gate questions.
// It holds no per-caller state; every call carries its own principal.
type Resolver struct {
	store   AssignmentStore
	catalog plan.Provider
	logger  *slog.Logger
	now     func() time.Time

	fresh     *gocache.Cache
	lastKnown *gocache.Cache
	group     singleflight.Group

	mu     sync.Mutex
	epochs map[string]uint64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithResolverClock overrides the clock.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithPlanCacheTTL sets how long fetched plan history is reused. Zero disables caching.
func WithPlanCacheTTL(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d < 0 {
			return
		}
		if d == 0 {
			r.fresh = nil
			return
		}
		r.fresh = gocache.New(d, 2*d)
	}
}

// WithLastKnownTTL sets how long plan history is kept as a fallback for store outages.
func WithLastKnownTTL(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.lastKnown = gocache.New(d, d)
		}
	}
}

// NewResolver creates a resolver reading plan history from store.
func NewResolver(store AssignmentStore, catalog plan.Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:     store,
		catalog:   catalog,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		fresh:     gocache.New(30*time.Second, time.Minute),
		lastKnown: gocache.New(24*time.Hour, time.Hour),
		epochs:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the effective plan of p.
// An active team assignment always wins and quota is then charged to the team.
// Otherwise the user's plan applies, or free when the user has none.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (Resolution, error) {
	if err := p.Validate(); err != nil {
		return Resolution{}, err
	}

	var (
		userTL, teamTL       []Assignment
		userStale, teamStale bool
	)
	team, hasTeam := p.Team()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		userTL, userStale, err = r.timeline(gctx, p.User())
		return err
	})
	if hasTeam {
		g.Go(func() error {
			var err error
			teamTL, teamStale, err = r.timeline(gctx, team)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Resolution{}, err
	}

	now := r.now()
	res := Resolution{Tier: plan.Free, Subject: p.User(), Stale: userStale}
	if a, ok := ActiveAssignment(userTL, now); ok {
		res.Tier = a.Tier
	}

	if hasTeam {
		if a, ok := ActiveAssignment(teamTL, now); ok {
			return Resolution{Tier: a.Tier, Subject: team, TeamPlan: true, Stale: teamStale}, nil
		}
		res.Stale = res.Stale || teamStale
	}
	return res, nil
}

// HasFeature reports whether p's effective plan grants f.
// Unknown features are logged and reported as not granted.
func (r *Resolver) HasFeature(ctx context.Context, p Principal, f plan.Feature) (bool, error) {
	res, err := r.Resolve(ctx, p)
	if err != nil {
		return false, err
	}
	c := r.catalog.Current()
	if _, err := c.MinimumTierFor(f); err != nil {
		r.logger.WarnContext(ctx, "feature gate on unknown feature",
			slog.String("feature", string(f)), slog.Any("error", err))
		return false, nil
	}
	return c.HasFeature(res.Tier, f), nil
}

// UpgradeInfo returns nil when p already has f, otherwise the minimum tier granting it
// and the marketing copy registered for it.
func (r *Resolver) UpgradeInfo(ctx context.Context, p Principal, f plan.Feature) (*UpgradeInfo, error) {
	res, err := r.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return UpgradeFor(r.catalog.Current(), res.Tier, f)
}

// UpgradeFor builds upgrade metadata for tier against f using catalog c.
func UpgradeFor(c *plan.Catalog, tier plan.Tier, f plan.Feature) (*UpgradeInfo, error) {
	info, err := c.FeatureInfo(f)
	if err != nil {
		return nil, err
	}
	if tier.AtLeast(info.MinTier) {
		return nil, nil
	}
	return &UpgradeInfo{
		Feature:      f,
		CurrentPlan:  tier,
		RequiredPlan: info.MinTier,
		Title:        info.Title,
		Description:  info.Description,
		UpgradeURL:   info.UpgradeURL,
	}, nil
}

// Invalidate drops cached plan data of s. Loads that started before the call
// can no longer populate the cache.
func (r *Resolver) Invalidate(s Subject) {
	key := s.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epochs[key]++
	if r.fresh != nil {
		r.fresh.Delete(key)
	}
}

func (r *Resolver) timeline(ctx context.Context, s Subject) ([]Assignment, bool, error) {
	key := s.Key()

	r.mu.Lock()
	epoch := r.epochs[key]
	if r.fresh != nil {
		if v, ok := r.fresh.Get(key); ok {
			r.mu.Unlock()
			return v.([]Assignment), false, nil
		}
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key+"#"+strconv.FormatUint(epoch, 10), func() (any, error) {
		tl, err := r.store.Timeline(context.WithoutCancel(ctx), s, r.now())
		if err != nil {
			return nil, err
		}
		r.remember(key, epoch, tl)
		return tl, nil
	})
	if err == nil {
		return v.([]Assignment), false, nil
	}

	if last, ok := r.lastKnown.Get(key); ok {
		r.logger.WarnContext(ctx, "assignment store unavailable, using last known plan",
			slog.String("subject", key), slog.Any("error", err))
		return last.([]Assignment), true, nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return nil, false, err
	}
	return nil, false, errors.Join(ErrStoreUnavailable, err)
}

func (r *Resolver) remember(key string, epoch uint64, tl []Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epochs[key] != epoch {
		return
	}
	if r.fresh != nil {
		r.fresh.Set(key, tl, gocache.DefaultExpiration)
	}
	r.lastKnown.Set(key, tl, gocache.DefaultExpiration)
}
