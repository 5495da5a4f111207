package entitlement

import "errors"

var (
	ErrStoreUnavailable  = errors.New("entitlement: assignment store unavailable")
	ErrInvalidPrincipal  = errors.New("entitlement: principal requires a user id")
	ErrInvalidSubject    = errors.New("entitlement: invalid subject")
	ErrInvalidAssignment = errors.New("entitlement: invalid plan assignment")
	ErrDuplicateEvent    = errors.New("entitlement: plan event already applied")
)
