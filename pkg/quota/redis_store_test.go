package quota_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/quota"
)

func newRedisStore(t *testing.T, opts ...quota.RedisStoreOption) (*quota.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(feb14)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return quota.NewRedisStore(client, opts...), mr
}

func TestRedisStore_TryConsume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("consume and deny", func(t *testing.T) {
		t.Parallel()
		s, _ := newRedisStore(t)

		fill(t, s, "user:1", 20, 20, feb14)

		res, err := s.TryConsume(ctx, consumeReq("user:1", 1, 20, feb14))
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, int64(20), res.Count)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), res.ResetAt)
	})

	t.Run("key layout and expiry", func(t *testing.T) {
		t.Parallel()
		s, mr := newRedisStore(t, quota.WithRedisPrefix("q"), quota.WithRedisRetention(time.Hour))

		_, err := s.TryConsume(ctx, consumeReq("user:1", 3, 20, feb14))
		require.NoError(t, err)

		start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		key := "q:user:1:compile_prompt:" + itoa(start.Unix())
		val, err := mr.Get(key)
		require.NoError(t, err)
		assert.Equal(t, "3", val)
		assert.True(t, mr.Exists(key))
	})

	t.Run("denied attempt does not create key", func(t *testing.T) {
		t.Parallel()
		s, mr := newRedisStore(t)

		res, err := s.TryConsume(ctx, consumeReq("user:1", 1, 0, feb14))
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Empty(t, mr.Keys())
	})

	t.Run("unavailable", func(t *testing.T) {
		t.Parallel()
		s, mr := newRedisStore(t)
		mr.Close()

		_, err := s.TryConsume(ctx, consumeReq("user:1", 1, 10, feb14))
		assert.ErrorIs(t, err, quota.ErrStoreUnavailable)

		_, err = s.Current(ctx, "user:1", plan.ActionCompilePrompt, plan.Month, feb14)
		assert.ErrorIs(t, err, quota.ErrStoreUnavailable)
	})

	t.Run("concurrent consumers never overshoot", func(t *testing.T) {
		t.Parallel()
		s, _ := newRedisStore(t)

		fill(t, s, "user:1", 18, 20, feb14)

		var wg sync.WaitGroup
		var allowed atomic.Int64
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := s.TryConsume(ctx, consumeReq("user:1", 1, 20, feb14))
				if err == nil && res.Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(2), allowed.Load())
		u, err := s.Current(ctx, "user:1", plan.ActionCompilePrompt, plan.Month, feb14)
		require.NoError(t, err)
		assert.Equal(t, int64(20), u.Count)
	})
}

func TestRedisStore_Release(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("credits back consumed quantity", func(t *testing.T) {
		t.Parallel()
		s, _ := newRedisStore(t)

		fill(t, s, "user:1", 5, 10, feb14)
		res, err := s.TryConsume(ctx, consumeReq("user:1", 3, 10, feb14))
		require.NoError(t, err)

		count, err := s.Release(ctx, res.Reservation)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
	})

	t.Run("reservations expire with their counter", func(t *testing.T) {
		t.Parallel()
		s, mr := newRedisStore(t, quota.WithRedisRetention(0))

		res, err := s.TryConsume(ctx, consumeReq("user:1", 1, 10, feb14))
		require.NoError(t, err)

		key := "quota:user:1:compile_prompt:" + itoa(res.PeriodStart.Unix())
		assert.True(t, mr.Exists(key+":reservations"))
		assert.Equal(t, mr.TTL(key), mr.TTL(key+":reservations"))
	})

	t.Run("unknown reservation leaves no keys", func(t *testing.T) {
		t.Parallel()
		s, mr := newRedisStore(t)

		_, err := s.Release(ctx, quota.Reservation{
			ID: uuid.NewString(), Subject: "user:1", Action: plan.ActionCompilePrompt, PeriodStart: feb14, Quantity: 1,
		})
		assert.ErrorIs(t, err, quota.ErrUnknownReservation)
		assert.Empty(t, mr.Keys())
	})

	testReleaseRules(t, func(t *testing.T) quota.Store {
		s, _ := newRedisStore(t)
		return s
	})
}
