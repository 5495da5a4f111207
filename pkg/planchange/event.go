package planchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/plan"
)

// Event is a plan transition emitted by billing after a confirmed payment or cancellation.
type Event struct {
	// ID deduplicates redeliveries. Events without an ID are never deduplicated.
	ID          string                  `json:"id,omitempty"`
	SubjectKind entitlement.SubjectKind `json:"subject_kind,omitempty"`
	SubjectID   string                  `json:"subject_id"`
	OldTier     plan.Tier               `json:"old_tier,omitempty"`
	NewTier     plan.Tier               `json:"new_tier"`
	EffectiveAt time.Time               `json:"effective_at,omitzero"`
	Source      string                  `json:"source,omitempty"`
}

// Subject returns the subject the event applies to. Kind defaults to user.
func (e Event) Subject() entitlement.Subject {
	kind := e.SubjectKind
	if kind == "" {
		kind = entitlement.KindUser
	}
	return entitlement.Subject{Kind: kind, ID: e.SubjectID}
}

// Downgrade reports whether the new tier ranks below the old one.
func (e Event) Downgrade() bool {
	return e.OldTier.Valid() && e.NewTier.Valid() && e.NewTier.Rank() < e.OldTier.Rank()
}

// Validate checks the subject and tiers.
func (e Event) Validate() error {
	var errs []error
	if err := e.Subject().Validate(); err != nil {
		errs = append(errs, err)
	}
	if !e.NewTier.Valid() {
		errs = append(errs, fmt.Errorf("new tier %q: %w", e.NewTier, plan.ErrUnknownTier))
	}
	if e.OldTier != "" && !e.OldTier.Valid() {
		errs = append(errs, fmt.Errorf("old tier %q: %w", e.OldTier, plan.ErrUnknownTier))
	}
	if len(errs) > 0 {
		return errors.Join(ErrInvalidEvent, errors.Join(errs...))
	}
	return nil
}
