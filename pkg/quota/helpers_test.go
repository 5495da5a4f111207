package quota_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/quota"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func consume(t *testing.T, s quota.Store, qty, limit int64) quota.Result {
	t.Helper()
	res, err := s.TryConsume(context.Background(), consumeReq("user:1", qty, limit, feb14))
	require.NoError(t, err)
	return res
}

func current(t *testing.T, s quota.Store) int64 {
	t.Helper()
	u, err := s.Current(context.Background(), "user:1", plan.ActionCompilePrompt, plan.Month, feb14)
	require.NoError(t, err)
	return u.Count
}

// testReleaseRules runs the release guarantees every Store must hold.
func testReleaseRules(t *testing.T, newStore func(t *testing.T) quota.Store) {
	ctx := context.Background()

	t.Run("second release of a reservation credits nothing", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)

		first := consume(t, s, 5, 20)
		require.True(t, first.Allowed)
		require.NotEmpty(t, first.Reservation.ID)
		second := consume(t, s, 5, 20)
		require.True(t, second.Allowed)

		count, err := s.Release(ctx, first.Reservation)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)

		_, err = s.Release(ctx, first.Reservation)
		assert.ErrorIs(t, err, quota.ErrUnknownReservation)
		assert.Equal(t, int64(5), current(t, s))
	})

	t.Run("credit uses the consumed quantity", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)

		fill(t, s, "user:1", 4, 10, feb14)
		res := consume(t, s, 2, 10)
		require.True(t, res.Allowed)

		r := res.Reservation
		r.Quantity = 50
		count, err := s.Release(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})

	t.Run("release and reconsume stay within the limit", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)

		var reservations []quota.Reservation
		for range 20 {
			res := consume(t, s, 1, 20)
			require.True(t, res.Allowed)
			reservations = append(reservations, res.Reservation)
		}

		allowed, released := 20, 0
		for range 3 {
			for _, r := range reservations {
				if _, err := s.Release(ctx, r); err == nil {
					released++
				} else {
					assert.ErrorIs(t, err, quota.ErrUnknownReservation)
				}
			}
			for range 20 {
				if consume(t, s, 1, 20).Allowed {
					allowed++
				}
			}
		}

		assert.Equal(t, 20, released)
		assert.Equal(t, 20+released, allowed)
		assert.Equal(t, int64(20), current(t, s))
	})

	t.Run("forged reservation is rejected", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)

		res := consume(t, s, 3, 10)
		require.True(t, res.Allowed)

		forged := res.Reservation
		forged.ID = uuid.NewString()
		_, err := s.Release(ctx, forged)
		assert.ErrorIs(t, err, quota.ErrUnknownReservation)

		other := res.Reservation
		other.Subject = "user:2"
		_, err = s.Release(ctx, other)
		assert.ErrorIs(t, err, quota.ErrUnknownReservation)

		assert.Equal(t, int64(3), current(t, s))
	})

	t.Run("malformed id", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)

		res := consume(t, s, 1, 10)
		r := res.Reservation
		r.ID = "42"
		_, err := s.Release(ctx, r)
		assert.ErrorIs(t, err, quota.ErrInvalidReservation)
	})
}
