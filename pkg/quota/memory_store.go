package quota

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/planguard/pkg/plan"
)

type counterKey struct {
	subject string
	action  plan.Action
	start   int64
}

type counter struct {
	count int64
	end   time.Time
}

// pending is an allowed consumption that has not been released yet.
type pending struct {
	key      counterKey
	quantity int64
	end      time.Time
}

// MemoryStore implements Store in process memory.
// All counters share one mutex, which makes every consume and release atomic.
type MemoryStore struct {
	mu           sync.Mutex
	counters     map[counterKey]*counter
	reservations map[string]pending

	retention       time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often closed windows are purged.
// Set to 0 to disable automatic cleanup.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithRetention sets how long counters of closed windows are kept.
func WithRetention(d time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if d >= 0 {
			ms.retention = d
		}
	}
}

// WithMemoryClock overrides the clock used by cleanup.
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore creates an in-memory store with optional cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		counters:        make(map[counterKey]*counter),
		reservations:    make(map[string]pending),
		retention:       24 * time.Hour,
		cleanupInterval: 10 * time.Minute,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ms)
	}

	if ms.cleanupInterval > 0 {
		go ms.cleanup()
	}

	return ms
}

func (ms *MemoryStore) TryConsume(ctx context.Context, req ConsumeRequest) (Result, error) {
	if err := validateRequest(&req); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start, end := req.Period.Window(req.Now)
	key := counterKey{subject: req.Subject, action: req.Action, start: start.Unix()}
	res := Result{Limit: req.Limit, PeriodStart: start, ResetAt: end}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	c, ok := ms.counters[key]
	if !ok {
		c = &counter{end: end}
		ms.counters[key] = c
	}

	if c.count+req.Quantity > req.Limit {
		res.Count = c.count
		return res, nil
	}

	c.count += req.Quantity
	res.Allowed = true
	res.Count = c.count
	res.Reservation = newReservation(req, start)
	ms.reservations[res.Reservation.ID] = pending{key: key, quantity: req.Quantity, end: end}
	return res, nil
}

func (ms *MemoryStore) Current(ctx context.Context, subject string, action plan.Action, period plan.Period, now time.Time) (Usage, error) {
	if subject == "" {
		return Usage{}, ErrInvalidSubject
	}
	if !period.Valid() {
		return Usage{}, ErrInvalidPeriod
	}
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}

	start, end := window(period, now)
	u := Usage{PeriodStart: start, ResetAt: end}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if c, ok := ms.counters[counterKey{subject: subject, action: action, start: start.Unix()}]; ok {
		u.Count = c.count
	}
	return u, nil
}

func (ms *MemoryStore) Release(ctx context.Context, r Reservation) (int64, error) {
	if err := validateReservation(r); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key := counterKey{subject: r.Subject, action: r.Action, start: r.PeriodStart.UTC().Unix()}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	p, ok := ms.reservations[r.ID]
	if !ok || p.key != key {
		return 0, ErrUnknownReservation
	}
	delete(ms.reservations, r.ID)

	c, ok := ms.counters[key]
	if !ok {
		return 0, nil
	}
	c.count = max(c.count-p.quantity, 0)
	return c.count, nil
}

// Len returns the number of counters held, including closed windows not yet purged.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.counters)
}

func (ms *MemoryStore) cleanup() {
	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.Purge()
		case <-ms.stopCleanup:
			return
		}
	}
}

// Purge removes counters whose window closed more than the retention period ago.
func (ms *MemoryStore) Purge() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	horizon := ms.now().Add(-ms.retention)
	removed := 0
	for key, c := range ms.counters {
		if c.end.Before(horizon) {
			delete(ms.counters, key)
			removed++
		}
	}
	for id, p := range ms.reservations {
		if p.end.Before(horizon) {
			delete(ms.reservations, id)
		}
	}
	return removed
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (ms *MemoryStore) Close() {
	ms.closeOnce.Do(func() { close(ms.stopCleanup) })
}
