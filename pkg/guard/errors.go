package guard

import "errors"

var (
	ErrInvalidQuantity     = errors.New("guard: quantity must be between 1 and the configured maximum")
	ErrInvalidReservation  = errors.New("guard: invalid reservation")
	ErrReservationNotOwned = errors.New("guard: reservation belongs to another subject")
	ErrStalePlan           = errors.New("guard: plan data is stale, refusing to consume quota")
)
