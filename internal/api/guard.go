package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/guard"
	"github.com/dmitrymomot/planguard/pkg/logger"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/quota"
)

const maxBodyBytes = 64 << 10

type actionRequest struct {
	Action   plan.Action `json:"action"`
	Quantity int64       `json:"quantity,omitempty"`
}

type releaseRequest struct {
	Reservation *quota.Reservation `json:"reservation"`
}

// DecisionResponse is the data of check, peek and feature responses.
type DecisionResponse struct {
	Decision decision.Decision `json:"decision"`
	Upsell   *guard.Upsell     `json:"upsell,omitempty"`
	TraceID  string            `json:"trace_id,omitempty"`
}

// UsageResponse is the data of the usage endpoint.
type UsageResponse struct {
	Usage   guard.Usage   `json:"usage"`
	Warning *guard.Upsell `json:"warning,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return HTTPError{Status: http.StatusBadRequest, Code: "empty_body"}
		}
		return errors.Join(errBadRequest, err)
	}
	return nil
}

// decisionStatus maps a verdict to its HTTP status: 402 for an exhausted
// quota, 403 for a missing feature.
func decisionStatus(d decision.Decision) (int, string) {
	switch {
	case d.Allowed:
		return http.StatusOK, "allowed"
	case d.Reason == decision.ReasonQuotaExceeded:
		return http.StatusPaymentRequired, "quota_exceeded"
	case d.Reason == decision.ReasonFeatureNotInPlan:
		return http.StatusForbidden, "feature_not_in_plan"
	}
	return http.StatusForbidden, "denied"
}

func (s *Server) decisionBody(r *http.Request, d decision.Decision) DecisionResponse {
	return DecisionResponse{
		Decision: d,
		Upsell:   s.guard.Upsell(d),
		TraceID:  guard.TraceIDFromContext(r.Context()),
	}
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Action == "" {
		writeError(w, HTTPError{Status: http.StatusBadRequest, Code: "action_required"})
		return
	}

	d, err := s.guard.Check(r.Context(), principal(r), req.Action, req.Quantity)
	if err != nil {
		s.logger.WarnContext(r.Context(), "guard check failed", logger.Action(req.Action), logger.Error(err))
		writeError(w, err)
		return
	}
	status, code := decisionStatus(d)
	writeJSON(w, status, Envelope{Code: code, Data: s.decisionBody(r, d)})
}

func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Action == "" {
		writeError(w, HTTPError{Status: http.StatusBadRequest, Code: "action_required"})
		return
	}

	d, err := s.guard.Peek(r.Context(), principal(r), req.Action, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	_, code := decisionStatus(d)
	writeJSON(w, http.StatusOK, Envelope{Code: code, Data: s.decisionBody(r, d)})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Reservation == nil {
		writeError(w, HTTPError{Status: http.StatusBadRequest, Code: "reservation_required"})
		return
	}

	count, err := s.guard.Release(r.Context(), principal(r), *req.Reservation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Code: "released", Data: map[string]int64{"count": count}})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	a := plan.Action(r.URL.Query().Get("action"))
	if a == "" {
		writeError(w, HTTPError{Status: http.StatusBadRequest, Code: "action_required"})
		return
	}
	u, err := s.guard.Usage(r.Context(), principal(r), a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Code: "usage", Data: UsageResponse{Usage: u, Warning: s.guard.UsageWarning(u)}})
}

func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	f := plan.Feature(chi.URLParam(r, "feature"))
	d, err := s.guard.HasFeature(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	_, code := decisionStatus(d)
	writeJSON(w, http.StatusOK, Envelope{Code: code, Data: s.decisionBody(r, d)})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	f := plan.Feature(r.URL.Query().Get("feature"))
	if f == "" {
		writeError(w, HTTPError{Status: http.StatusBadRequest, Code: "feature_required"})
		return
	}
	info, err := s.guard.UpgradeInfo(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if info == nil {
		writeJSON(w, http.StatusOK, Envelope{Code: "already_included"})
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Code: "upgrade_required", Data: info})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	info, err := s.guard.PlanInfo(r.Context(), principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Code: "plan", Data: info})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var limit uint64 = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || n == 0 || n > 500 {
			writeError(w, HTTPError{Status: http.StatusBadRequest, Code: "invalid_limit"})
			return
		}
		limit = n
	}

	info, err := s.guard.PlanInfo(r.Context(), principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := s.history.Recent(r.Context(), info.Subject, limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "usage history query failed", logger.Subject(info.Subject), logger.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Code: "events", Data: events})
}
