package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/planguard/pkg/plan"
)

// Store keeps per-window usage counters.
// TryConsume and Release are the only mutating operations and both are atomic per counter.
type Store interface {
	// TryConsume increments the counter of the window containing req.Now by
	// req.Quantity if the result stays within req.Limit. A rejected attempt
	// leaves the counter untouched and reports its current value.
	TryConsume(ctx context.Context, req ConsumeRequest) (Result, error)

	// Current returns the counter of the window containing now without mutating it.
	Current(ctx context.Context, subject string, action plan.Action, period plan.Period, now time.Time) (Usage, error)

	// Release credits back the quantity recorded for an allowed consumption and
	// returns the counter after the credit. Each reservation is credited at most
	// once: an unknown or already released reservation returns ErrUnknownReservation.
	// The quantity carried by r is ignored. The counter never goes below zero.
	Release(ctx context.Context, r Reservation) (int64, error)
}

// ConsumeRequest describes one consumption attempt.
type ConsumeRequest struct {
	Subject  string
	Action   plan.Action
	Quantity int64
	Limit    int64
	Period   plan.Period
	Now      time.Time
}

// Result is the outcome of TryConsume.
// Count is the counter after the attempt: the new value when allowed,
// the unchanged current value when denied.
type Result struct {
	Allowed     bool
	Count       int64
	Limit       int64
	PeriodStart time.Time
	ResetAt     time.Time
	Reservation Reservation
}

// Remaining returns the quota left in the window.
func (r Result) Remaining() int64 {
	return max(r.Limit-r.Count, 0)
}

// Usage is a read-only view of a counter.
type Usage struct {
	Count       int64
	PeriodStart time.Time
	ResetAt     time.Time
}

// Reservation identifies a consumed amount that can be credited back with Release.
// ID is generated by the store; the consumed quantity is kept store-side.
type Reservation struct {
	ID          string      `json:"id"`
	Subject     string      `json:"subject"`
	Action      plan.Action `json:"action"`
	PeriodStart time.Time   `json:"period_start"`
	Quantity    int64       `json:"quantity"`
}

// IsZero reports whether r holds nothing to release.
func (r Reservation) IsZero() bool {
	return r.ID == ""
}

func newReservation(req ConsumeRequest, start time.Time) Reservation {
	return Reservation{
		ID:          uuid.NewString(),
		Subject:     req.Subject,
		Action:      req.Action,
		PeriodStart: start,
		Quantity:    req.Quantity,
	}
}

func validateRequest(req *ConsumeRequest) error {
	switch {
	case req.Subject == "":
		return ErrInvalidSubject
	case req.Action == "":
		return ErrInvalidAction
	case req.Quantity <= 0:
		return ErrInvalidQuantity
	case req.Limit < 0:
		return ErrInvalidLimit
	case !req.Period.Valid():
		return ErrInvalidPeriod
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	return nil
}

func validateReservation(r Reservation) error {
	switch {
	case r.Subject == "":
		return ErrInvalidSubject
	case r.Action == "":
		return ErrInvalidAction
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return errors.Join(ErrInvalidReservation, err)
	}
	return nil
}

func window(period plan.Period, now time.Time) (time.Time, time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	return period.Window(now)
}
