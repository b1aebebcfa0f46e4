package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tasktide/tasktide-backend/api/responses"
	"github.com/tasktide/tasktide-backend/internal/audit"
	pkgerrors "github.com/tasktide/tasktide-backend/pkg/errors"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

type auditEntryDTO struct {
	ID          uuid.UUID       `json:"id"`
	Action      string          `json:"action"`
	Description string          `json:"description"`
	Changes     json.RawMessage `json:"changes,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	UserID      *uuid.UUID      `json:"userId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// TaskHistory returns the task's audit trail, newest first.
func TaskHistory(svc *audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid task id"))
			return
		}

		entries, err := svc.History(r.Context(), taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dtos := make([]auditEntryDTO, 0, len(entries))
		for _, entry := range entries {
			dtos = append(dtos, auditEntryDTO{
				ID:          entry.ID,
				Action:      string(entry.Action),
				Description: entry.Description,
				Changes:     entry.Changes,
				Metadata:    entry.Metadata,
				UserID:      entry.UserID,
				CreatedAt:   entry.CreatedAt,
			})
		}
		responses.WriteSuccess(w, dtos)
	}
}
