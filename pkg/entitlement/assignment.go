package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/planguard/pkg/plan"
)

// Assignment is one row of a subject's plan history.
// EffectiveTo, when set, ends the assignment; otherwise it lasts until a later one takes over.
type Assignment struct {
	ID            uuid.UUID  `json:"id"`
	Subject       Subject    `json:"subject"`
	Tier          plan.Tier  `json:"tier"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	EventID       string     `json:"event_id,omitempty"`
	Source        string     `json:"source,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ActiveAt reports whether the assignment covers t.
func (a Assignment) ActiveAt(t time.Time) bool {
	if t.Before(a.EffectiveFrom) {
		return false
	}
	return a.EffectiveTo == nil || t.Before(*a.EffectiveTo)
}

// Validate checks the fields required to persist a.
func (a Assignment) Validate() error {
	var errs []error
	if err := a.Subject.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !a.Tier.Valid() {
		errs = append(errs, fmt.Errorf("unknown tier %q", a.Tier))
	}
	if a.EffectiveFrom.IsZero() {
		errs = append(errs, errors.New("effective_from is required"))
	}
	if a.EffectiveTo != nil && !a.EffectiveTo.After(a.EffectiveFrom) {
		errs = append(errs, errors.New("effective_to must be after effective_from"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidAssignment}, errs...)...)
	}
	return nil
}

// AssignmentStore persists plan history. Rows are only ever appended.
type AssignmentStore interface {
	// Append stores a new assignment. An EventID seen before yields ErrDuplicateEvent.
	Append(ctx context.Context, a Assignment) error

	// Timeline returns the latest assignment that started at or before at,
	// followed by every assignment scheduled after at, ordered by start time.
	Timeline(ctx context.Context, s Subject, at time.Time) ([]Assignment, error)

	// History returns every assignment of s, oldest first.
	History(ctx context.Context, s Subject) ([]Assignment, error)
}

// ActiveAssignment picks the assignment in force at t from a timeline.
// The most recent start wins; among equal starts the last created wins.
// It reports false when nothing has started yet or the winner already ended.
func ActiveAssignment(timeline []Assignment, t time.Time) (Assignment, bool) {
	var (
		best  Assignment
		found bool
	)
	for _, a := range timeline {
		if a.EffectiveFrom.After(t) {
			continue
		}
		if !found || newer(a, best) {
			best, found = a, true
		}
	}
	if !found || !best.ActiveAt(t) {
		return Assignment{}, false
	}
	return best, true
}

func newer(a, b Assignment) bool {
	if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
		return a.EffectiveFrom.After(b.EffectiveFrom)
	}
	return !a.CreatedAt.Before(b.CreatedAt)
}

func prepareAssignment(a Assignment, now time.Time) (Assignment, error) {
	if err := a.Validate(); err != nil {
		return Assignment{}, err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.EffectiveFrom = a.EffectiveFrom.UTC()
	if a.EffectiveTo != nil {
		to := a.EffectiveTo.UTC()
		a.EffectiveTo = &to
	}
	return a, nil
}
