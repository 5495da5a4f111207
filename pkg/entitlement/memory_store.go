package entitlement

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps plan history in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	rows     map[string][]Assignment
	eventIDs map[string]struct{}
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:     make(map[string][]Assignment),
		eventIDs: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Append stores a and closes the row open at a.EffectiveFrom.
func (s *MemoryStore) Append(ctx context.Context, a Assignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, err := prepareAssignment(a, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a.EventID != "" {
		if _, dup := s.eventIDs[a.EventID]; dup {
			return ErrDuplicateEvent
		}
		s.eventIDs[a.EventID] = struct{}{}
	}

	key := a.Subject.Key()
	rows := s.rows[key]
	for i := range rows {
		if closesAt(rows[i], a.EffectiveFrom) {
			to := a.EffectiveFrom
			rows[i].EffectiveTo = &to
		}
	}
	rows = append(rows, a)
	slices.SortStableFunc(rows, func(x, y Assignment) int {
		if c := x.EffectiveFrom.Compare(y.EffectiveFrom); c != 0 {
			return c
		}
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	s.rows[key] = rows
	return nil
}

func (s *MemoryStore) Timeline(ctx context.Context, subject Subject, at time.Time) ([]Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[subject.Key()]
	var out []Assignment
	current := -1
	for i, a := range rows {
		if !a.EffectiveFrom.After(at) {
			current = i
		}
	}
	if current >= 0 {
		out = append(out, cloneAssignment(rows[current]))
	}
	for _, a := range rows[current+1:] {
		out = append(out, cloneAssignment(a))
	}
	return out, nil
}

func (s *MemoryStore) History(ctx context.Context, subject Subject) ([]Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[subject.Key()]
	out := make([]Assignment, len(rows))
	for i, a := range rows {
		out[i] = cloneAssignment(a)
	}
	return out, nil
}

// closesAt reports whether r started before t and is still open at t.
func closesAt(r Assignment, t time.Time) bool {
	return r.EffectiveFrom.Before(t) && (r.EffectiveTo == nil || r.EffectiveTo.After(t))
}

func cloneAssignment(a Assignment) Assignment {
	if a.EffectiveTo != nil {
		to := *a.EffectiveTo
		a.EffectiveTo = &to
	}
	return a
}
