package quota

import "errors"

var (
	ErrStoreUnavailable = errors.New("quota: store unavailable")
	ErrInvalidSubject   = errors.New("quota: subject is required")
	ErrInvalidAction    = errors.New("quota: action is required")
	ErrInvalidQuantity  = errors.New("quota: quantity must be positive")
	ErrInvalidLimit     = errors.New("quota: limit must be zero or positive")
	ErrInvalidPeriod    = errors.New("quota: unknown period")

	ErrInvalidReservation = errors.New("quota: invalid reservation id")
	ErrUnknownReservation = errors.New("quota: reservation not found or already released")
)
