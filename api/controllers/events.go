package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/tasktide/tasktide-backend/api/responses"
	"github.com/tasktide/tasktide-backend/pkg/enums"
	pkgerrors "github.com/tasktide/tasktide-backend/pkg/errors"
	"github.com/tasktide/tasktide-backend/pkg/events"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

type emitEventRequest struct {
	EventType   string          `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
}

type emitEventResponse struct {
	Accepted bool `json:"accepted"`
}

// EmitEvent lets sibling services hand a committed mutation to the event
// pipeline over HTTP. Accepted=false means delivery is uncertain; the caller
// must not roll back.
func EmitEvent(emitter *events.Emitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emitEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}

		eventType, err := enums.ParseEventType(req.EventType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown event type"))
			return
		}
		if req.AggregateID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "aggregateId is required"))
			return
		}

		accepted := emitter.EmitMutationEvent(r.Context(), eventType, req.AggregateID, req.Payload)
		responses.WriteSuccessStatus(w, http.StatusAccepted, emitEventResponse{Accepted: accepted})
	}
}
