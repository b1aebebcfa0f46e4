package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tasktide/tasktide-backend/pkg/db"
	"github.com/tasktide/tasktide-backend/pkg/db/models"
	"github.com/tasktide/tasktide-backend/pkg/events"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

// ConsumerName scopes idempotency markers to this consumer group.
const ConsumerName = "notifications"

type repository interface {
	Insert(ctx context.Context, row *models.Notification) error
}

type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Worker turns domain events into in-app notification rows. Delivery is
// at-least-once, so each event is fenced through the idempotency guard before
// any row is written.
type Worker struct {
	repo     repository
	guard    processedGuard
	registry *events.DecoderRegistry
	logg     *logger.Logger
}

func NewWorker(repo repository, guard processedGuard, logg *logger.Logger) (*Worker, error) {
	if repo == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Worker{
		repo:     repo,
		guard:    guard,
		registry: events.NewDefaultRegistry(),
		logg:     logg,
	}, nil
}

// Handle is the queue handler. A returned error drops the event.
func (w *Worker) Handle(ctx context.Context, envelope events.Envelope) error {
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", envelope.EventID, err)
	}

	logCtx := w.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": envelope.EventType,
	})

	duplicate, err := w.guard.CheckAndMarkProcessed(ctx, ConsumerName, eventID)
	if err != nil {
		// Guard outage: process anyway. A duplicate notification beats a
		// lost one.
		w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "idempotency guard unavailable")
	} else if duplicate {
		w.logg.Debug(logCtx, "duplicate event suppressed")
		return nil
	}

	decoded, err := w.registry.Decode(envelope.EventType, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decoding %s payload: %w", envelope.EventType, err)
	}

	rows := rowsFor(envelope.EventID, decoded)
	for _, row := range rows {
		if err := w.repo.Insert(ctx, row); err != nil {
			if db.IsUniqueViolation(err, "") {
				// Row IDs derive from the event ID, so a redelivery that
				// slipped past the guard lands here.
				w.logg.Debug(logCtx, "notification already materialized")
				continue
			}
			if delErr := w.guard.Delete(ctx, ConsumerName, eventID); delErr != nil {
				w.logg.Warn(w.logg.WithField(logCtx, "error", delErr.Error()), "failed to clear idempotency marker")
			}
			return fmt.Errorf("inserting notification: %w", err)
		}
	}

	if len(rows) > 0 {
		w.logg.Info(w.logg.WithField(logCtx, "rows", len(rows)), "notifications materialized")
	}
	return nil
}

// rowsFor maps a decoded payload to zero or more notification rows. Event
// types with no notification semantics fall through to nil and are simply
// acked. Row IDs derive from (eventID, recipient) so redeliveries produce
// the same primary key.
func rowsFor(eventID string, decoded any) []*models.Notification {
	switch payload := decoded.(type) {
	case events.TaskAssignedPayload:
		if payload.AssigneeID == nil {
			return nil
		}
		return []*models.Notification{{
			ID:      rowID(eventID, *payload.AssigneeID),
			UserID:  *payload.AssigneeID,
			TaskID:  &payload.TaskID,
			Title:   "Task assigned to you",
			Message: "You have been assigned a task.",
			Link:    taskLink(payload.TaskID),
		}}
	case events.CommentCreatedPayload:
		if payload.TaskOwnerID == uuid.Nil || payload.TaskOwnerID == payload.AuthorID {
			return nil
		}
		return []*models.Notification{{
			ID:      rowID(eventID, payload.TaskOwnerID),
			UserID:  payload.TaskOwnerID,
			TaskID:  &payload.TaskID,
			Title:   "New comment on your task",
			Message: payload.Body,
			Link:    taskLink(payload.TaskID),
		}}
	case events.UserRegisteredPayload:
		return []*models.Notification{{
			ID:      rowID(eventID, payload.UserID),
			UserID:  payload.UserID,
			Title:   "Welcome to TaskTide",
			Message: "Your account is ready. Create your first task to get started.",
		}}
	default:
		return nil
	}
}

func rowID(eventID string, recipient uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(eventID+"/"+recipient.String()))
}

func taskLink(taskID uuid.UUID) *string {
	link := "/tasks/" + taskID.String()
	return &link
}
