package guard_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/guard"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/quota"
	"github.com/dmitrymomot/planguard/pkg/usage"
)

// Mid-February, so monthly windows reset on March 1.
var now = time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC)

var marchFirst = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// spyStore counts calls reaching the wrapped store.
type spyStore struct {
	quota.Store
	consumes atomic.Int64
	reads    atomic.Int64
	releases atomic.Int64
}

func (s *spyStore) TryConsume(ctx context.Context, req quota.ConsumeRequest) (quota.Result, error) {
	s.consumes.Add(1)
	return s.Store.TryConsume(ctx, req)
}

func (s *spyStore) Current(ctx context.Context, subject string, a plan.Action, p plan.Period, at time.Time) (quota.Usage, error) {
	s.reads.Add(1)
	return s.Store.Current(ctx, subject, a, p, at)
}

func (s *spyStore) Release(ctx context.Context, r quota.Reservation) (int64, error) {
	s.releases.Add(1)
	return s.Store.Release(ctx, r)
}

func (s *spyStore) calls() int64 {
	return s.consumes.Load() + s.reads.Load() + s.releases.Load()
}

type downStore struct{}

var errDown = errors.Join(quota.ErrStoreUnavailable, errors.New("connection refused"))

func (downStore) TryConsume(context.Context, quota.ConsumeRequest) (quota.Result, error) {
	return quota.Result{}, errDown
}

func (downStore) Current(context.Context, string, plan.Action, plan.Period, time.Time) (quota.Usage, error) {
	return quota.Usage{}, errDown
}

func (downStore) Release(context.Context, quota.Reservation) (int64, error) {
	return 0, errDown
}

// flakyAssignments fails every read while down is set.
type flakyAssignments struct {
	*entitlement.MemoryStore
	down atomic.Bool
}

func (f *flakyAssignments) Timeline(ctx context.Context, s entitlement.Subject, at time.Time) ([]entitlement.Assignment, error) {
	if f.down.Load() {
		return nil, errors.New("assignment db down")
	}
	return f.MemoryStore.Timeline(ctx, s, at)
}

type memRecorder struct {
	mu     sync.Mutex
	events []usage.Event
}

func (r *memRecorder) Record(_ context.Context, ev usage.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRecorder) all() []usage.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]usage.Event(nil), r.events...)
}

type fixture struct {
	assignments *flakyAssignments
	resolver    *entitlement.Resolver
	counters    *quota.MemoryStore
	store       *spyStore
	cache       *decision.MemoryCache
	svc         *guard.Service
}

func newFixture(t *testing.T, opts ...guard.Option) *fixture {
	t.Helper()

	catalog := plan.Default()
	f := &fixture{
		assignments: &flakyAssignments{MemoryStore: entitlement.NewMemoryStore()},
		counters:    quota.NewMemoryStore(quota.WithCleanupInterval(time.Hour)),
		cache:       decision.NewMemoryCache(1024),
	}
	t.Cleanup(f.counters.Close)

	f.store = &spyStore{Store: f.counters}
	f.resolver = entitlement.NewResolver(f.assignments, catalog,
		entitlement.WithResolverClock(clock),
		entitlement.WithPlanCacheTTL(0),
	)
	f.svc = guard.New(catalog, f.resolver, f.store, append([]guard.Option{
		guard.WithClock(clock),
		guard.WithCache(f.cache),
	}, opts...)...)
	return f
}

func (f *fixture) assign(t *testing.T, s entitlement.Subject, tier plan.Tier) {
	t.Helper()
	require.NoError(t, f.assignments.Append(context.Background(), entitlement.Assignment{
		Subject:       s,
		Tier:          tier,
		EffectiveFrom: now.Add(-24 * time.Hour),
		Source:        "test",
	}))
	f.resolver.Invalidate(s)
}

// fill consumes n units directly in the counter store.
func (f *fixture) fill(t *testing.T, subject string, a plan.Action, n, limit int64) {
	t.Helper()
	res, err := f.counters.TryConsume(context.Background(), quota.ConsumeRequest{
		Subject:  subject,
		Action:   a,
		Quantity: n,
		Limit:    limit,
		Period:   plan.Month,
		Now:      now,
	})
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func user(id string) entitlement.Principal { return entitlement.Principal{UserID: id} }

func member(userID, teamID string) entitlement.Principal {
	return entitlement.Principal{UserID: userID, TeamID: teamID}
}
