package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/guard"
	"github.com/dmitrymomot/planguard/pkg/jwt"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/planchange"
	"github.com/dmitrymomot/planguard/pkg/quota"
	"github.com/dmitrymomot/planguard/pkg/webhook"
)

// Envelope is the body of every API response.
type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// HTTPError pairs a status with a machine-readable code.
type HTTPError struct {
	Status int
	Code   string
}

func (e HTTPError) Error() string { return e.Code }

var (
	errBadRequest         = HTTPError{Status: http.StatusBadRequest, Code: "bad_request"}
	errUnauthorized       = HTTPError{Status: http.StatusUnauthorized, Code: "unauthorized"}
	errForbidden          = HTTPError{Status: http.StatusForbidden, Code: "forbidden"}
	errReservationUsed    = HTTPError{Status: http.StatusConflict, Code: "unknown_reservation"}
	errNotFound           = HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	errUnprocessable      = HTTPError{Status: http.StatusUnprocessableEntity, Code: "unprocessable_entity"}
	errTooManyRequests    = HTTPError{Status: http.StatusTooManyRequests, Code: "too_many_requests"}
	errInternal           = HTTPError{Status: http.StatusInternalServerError, Code: "internal_error"}
	errServiceUnavailable = HTTPError{Status: http.StatusServiceUnavailable, Code: "service_unavailable"}
)

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// classify maps domain errors to HTTP errors.
func classify(err error) HTTPError {
	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, guard.ErrInvalidQuantity),
		errors.Is(err, guard.ErrInvalidReservation),
		errors.Is(err, quota.ErrInvalidReservation),
		errors.Is(err, entitlement.ErrInvalidPrincipal),
		errors.Is(err, webhook.ErrEmptyPayload):
		return errBadRequest
	case errors.Is(err, plan.ErrUnknownFeature), errors.Is(err, plan.ErrUnknownAction):
		return errNotFound
	case errors.Is(err, guard.ErrReservationNotOwned):
		return errForbidden
	case errors.Is(err, quota.ErrUnknownReservation):
		return errReservationUsed
	case errors.Is(err, jwt.ErrMissingToken),
		errors.Is(err, jwt.ErrInvalidToken),
		errors.Is(err, jwt.ErrExpiredToken),
		errors.Is(err, jwt.ErrMissingSubject),
		errors.Is(err, webhook.ErrMissingSignature),
		errors.Is(err, webhook.ErrInvalidTimestamp),
		errors.Is(err, webhook.ErrSignatureExpired),
		errors.Is(err, webhook.ErrSignatureMismatch):
		return errUnauthorized
	case errors.Is(err, planchange.ErrInvalidEvent), errors.Is(err, entitlement.ErrInvalidAssignment):
		return errUnprocessable
	case errors.Is(err, guard.ErrStalePlan),
		errors.Is(err, quota.ErrStoreUnavailable),
		errors.Is(err, entitlement.ErrStoreUnavailable),
		errors.Is(err, webhook.ErrMissingSecret):
		return errServiceUnavailable
	}
	return errInternal
}

// writeError renders err. Internal errors never leak their text.
func writeError(w http.ResponseWriter, err error) {
	e := classify(err)
	msg := err.Error()
	if e.Status >= http.StatusInternalServerError {
		msg = http.StatusText(e.Status)
	}
	writeJSON(w, e.Status, Envelope{Code: e.Code, Message: msg})
}
