package planchange_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/planchange"
)

type recordingInvalidator struct {
	mu       sync.Mutex
	subjects []entitlement.Subject
}

func (r *recordingInvalidator) Invalidate(_ context.Context, s entitlement.Subject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, s)
	return nil
}

func (r *recordingInvalidator) seen() []entitlement.Subject {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entitlement.Subject(nil), r.subjects...)
}

func TestRedisNotifier(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	publisher := planchange.NewRedisNotifier(newClient(), planchange.WithChannel("test:plans"))
	peer := planchange.NewRedisNotifier(newClient(), planchange.WithChannel("test:plans"))

	inv := &recordingInvalidator{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := peer.Subscribe(ctx, inv)
	require.NoError(t, err)

	// The peer's own notices are skipped.
	require.NoError(t, peer.Notify(ctx, planchange.Event{SubjectID: "self", NewTier: plan.Pro}))
	require.NoError(t, publisher.Notify(ctx, planchange.Event{
		SubjectKind: entitlement.KindTeam, SubjectID: "acme", NewTier: plan.Team,
	}))

	assert.Eventually(t, func() bool { return len(inv.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []entitlement.Subject{entitlement.TeamSubject("acme")}, inv.seen())

	require.NoError(t, sub.Close())
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription still running after Close")
	}
}

func TestRedisNotifier_EndToEnd(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// Instance A handles billing events; instance B only hears about them.
	a := newEnv(t, planchange.WithNotifier(planchange.NewRedisNotifier(client)))
	b := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := planchange.NewRedisNotifier(client).Subscribe(ctx, b.listener)
	require.NoError(t, err)
	defer sub.Close()

	p := entitlement.Principal{UserID: "u1"}
	d, err := b.svc.HasFeature(ctx, p, plan.FeatureSSO)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Positive(t, b.cache.Len())

	require.NoError(t, a.listener.Handle(ctx, planchange.Event{ID: "e1", SubjectID: "u1", NewTier: plan.Team}))

	assert.Eventually(t, func() bool { return b.cache.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisNotifier_SubscribeFailsWhenServerDown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := planchange.NewRedisNotifier(client).Subscribe(ctx, &recordingInvalidator{})
	assert.Error(t, err)

	err = planchange.NewRedisNotifier(client).Notify(ctx, planchange.Event{SubjectID: "u1", NewTier: plan.Pro})
	assert.ErrorIs(t, err, planchange.ErrNotifyFailed)
}
