package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrymomot/planguard/pkg/logger"
	"github.com/dmitrymomot/planguard/pkg/planchange"
	"github.com/dmitrymomot/planguard/pkg/webhook"
)

// handlePlanEvent applies a signed plan change pushed by billing. Redelivered
// events are acknowledged without effect.
func (s *Server) handlePlanEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.Join(errBadRequest, err))
		return
	}
	sig, err := webhook.FromRequest(r)
	if err == nil {
		err = webhook.Verify(s.webhookSecret, body, sig, s.signatureAge, s.now())
	}
	if err != nil {
		s.logger.WarnContext(ctx, "plan event rejected", logger.Error(err))
		writeError(w, err)
		return
	}

	var ev planchange.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, errors.Join(errBadRequest, err))
		return
	}
	if err := s.events.Handle(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "plan event failed",
			logger.Event(ev.ID), logger.Subject(ev.Subject().Key()), logger.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Code: "accepted", Data: map[string]string{"id": ev.ID}})
}
