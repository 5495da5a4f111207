package plan

import "errors"

var (
	ErrUnknownTier       = errors.New("plan: unknown tier")
	ErrUnknownFeature    = errors.New("plan: unknown feature")
	ErrUnknownAction     = errors.New("plan: unknown action")
	ErrInvalidDefinition = errors.New("plan: invalid catalog definition")
	ErrSourceUnavailable = errors.New("plan: catalog source unavailable")
	ErrNoCatalogSource   = errors.New("plan: catalog source is required")
)
