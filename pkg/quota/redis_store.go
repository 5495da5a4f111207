package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/planguard/pkg/plan"
)

// KEYS[1] is the counter, KEYS[2] the hash of unreleased reservations of that
// window (id -> quantity). Returns {allowed, count}. Both keys expire at ARGV[3] (unix ms).
var redisConsumeScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local qty = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if current + qty > limit then
  return {0, current}
end
local count = redis.call("INCRBY", KEYS[1], qty)
redis.call("HSET", KEYS[2], ARGV[4], qty)
redis.call("PEXPIREAT", KEYS[1], ARGV[3])
redis.call("PEXPIREAT", KEYS[2], ARGV[3])
return {1, count}
`)

// Returns {found, count}. The reservation is removed before the credit, so a
// second release of the same id finds nothing.
var redisReleaseScript = redis.NewScript(`
local qty = redis.call("HGET", KEYS[2], ARGV[1])
if not qty then
  return {0, 0}
end
redis.call("HDEL", KEYS[2], ARGV[1])
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {1, 0}
end
local count = redis.call("DECRBY", KEYS[1], tonumber(qty))
if count < 0 then
  redis.call("INCRBY", KEYS[1], -count)
  count = 0
end
return {1, count}
`)

// RedisStore implements Store on Redis. Consume and release run as Lua scripts,
// so they are atomic across every process sharing the Redis instance.
type RedisStore struct {
	client    redis.Scripter
	prefix    string
	retention time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisPrefix sets the key prefix. Defaults to "quota".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = strings.TrimSpace(prefix)
	}
}

// WithRedisRetention keeps counters this long after their window closes.
func WithRedisRetention(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// NewRedisStore creates a store backed by client.
func NewRedisStore(client redis.Scripter, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		prefix:    "quota",
		retention: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) TryConsume(ctx context.Context, req ConsumeRequest) (Result, error) {
	if err := validateRequest(&req); err != nil {
		return Result{}, err
	}

	start, end := req.Period.Window(req.Now)
	expireAt := end.Add(s.retention).UnixMilli()

	key := s.key(req.Subject, req.Action, start)
	reservation := newReservation(req, start)

	raw, err := redisConsumeScript.Run(ctx, s.client,
		[]string{key, reservationsKey(key)},
		req.Quantity, req.Limit, expireAt, reservation.ID,
	).Result()
	if err != nil {
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}

	allowed, count, err := toPair(raw)
	if err != nil {
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}

	res := Result{
		Allowed:     allowed == 1,
		Count:       count,
		Limit:       req.Limit,
		PeriodStart: start,
		ResetAt:     end,
	}
	if res.Allowed {
		res.Reservation = reservation
	}
	return res, nil
}

func (s *RedisStore) Current(ctx context.Context, subject string, action plan.Action, period plan.Period, now time.Time) (Usage, error) {
	if subject == "" {
		return Usage{}, ErrInvalidSubject
	}
	if !period.Valid() {
		return Usage{}, ErrInvalidPeriod
	}

	start, end := window(period, now)
	u := Usage{PeriodStart: start, ResetAt: end}

	raw, err := redisGet(ctx, s.client, s.key(subject, action, start))
	if err != nil {
		return Usage{}, errors.Join(ErrStoreUnavailable, err)
	}
	u.Count = raw
	return u, nil
}

func (s *RedisStore) Release(ctx context.Context, r Reservation) (int64, error) {
	if err := validateReservation(r); err != nil {
		return 0, err
	}

	key := s.key(r.Subject, r.Action, r.PeriodStart.UTC())
	raw, err := redisReleaseScript.Run(ctx, s.client,
		[]string{key, reservationsKey(key)},
		r.ID,
	).Result()
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	found, count, err := toPair(raw)
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	if found == 0 {
		return 0, ErrUnknownReservation
	}
	return count, nil
}

func reservationsKey(key string) string {
	return key + ":reservations"
}

func (s *RedisStore) key(subject string, action plan.Action, start time.Time) string {
	startStr := strconv.FormatInt(start.Unix(), 10)
	if s.prefix == "" {
		return subject + ":" + string(action) + ":" + startStr
	}
	return s.prefix + ":" + subject + ":" + string(action) + ":" + startStr
}

// redisGet reads an integer counter. Scripter has no GET, so the read runs through EVAL as well.
func redisGet(ctx context.Context, c redis.Scripter, key string) (int64, error) {
	raw, err := redisReadScript.Run(ctx, c, []string{key}).Result()
	if err != nil {
		return 0, err
	}
	return toInt64(raw)
}

var redisReadScript = redis.NewScript(`
return tonumber(redis.call("GET", KEYS[1]) or "0")
`)

func toPair(raw any) (int64, int64, error) {
	vals, ok := raw.([]any)
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected script reply %T", raw)
	}
	a, err1 := toInt64(vals[0])
	b, err2 := toInt64(vals[1])
	if err := errors.Join(err1, err2); err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis reply type %T", v)
	}
}
