package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/tasktide/tasktide-backend/pkg/db/models"
	"github.com/tasktide/tasktide-backend/pkg/enums"
	apperrors "github.com/tasktide/tasktide-backend/pkg/errors"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

type repository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.AuditLog, error)
}

// Service writes and reads the per-task audit trail.
type Service struct {
	repo repository
	logg *logger.Logger
}

func NewService(repo repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "audit repository is required")
	}
	if logg == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "logger is required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// RecordInput describes one ledger entry. Description may be empty; a default
// is derived from the action.
type RecordInput struct {
	Action      enums.AuditAction
	TaskID      uuid.UUID
	UserID      *uuid.UUID
	Description string
	Changes     map[string]FieldChange
	Metadata    json.RawMessage
}

// Record appends one entry to the ledger and returns it.
func (s *Service) Record(ctx context.Context, input RecordInput) (*models.AuditLog, error) {
	if !input.Action.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, "unknown audit action").WithDetails(string(input.Action))
	}
	if input.TaskID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "task id is required")
	}

	description := input.Description
	if description == "" {
		description = describeAction(input.Action)
	}

	var changes json.RawMessage
	if len(input.Changes) > 0 {
		encoded, err := json.Marshal(input.Changes)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "encoding audit changes")
		}
		changes = encoded
	}

	entry := &models.AuditLog{
		ID:          uuid.New(),
		Action:      input.Action,
		Description: description,
		Changes:     changes,
		Metadata:    input.Metadata,
		TaskID:      input.TaskID,
		UserID:      input.UserID,
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "inserting audit entry")
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"task_id": input.TaskID.String(),
		"action":  string(input.Action),
	}), "audit entry recorded")
	return entry, nil
}

// RecordUpdate diffs two task snapshots and records the result. When no
// tracked field changed it records nothing and returns (nil, nil).
func (s *Service) RecordUpdate(ctx context.Context, taskID uuid.UUID, userID *uuid.UUID, oldState, newState TaskState, metadata json.RawMessage) (*models.AuditLog, error) {
	diff := ComputeUpdateDiff(oldState, newState)
	if diff.Empty() {
		return nil, nil
	}
	return s.Record(ctx, RecordInput{
		Action:      diff.Action,
		TaskID:      taskID,
		UserID:      userID,
		Description: diff.Description,
		Changes:     diff.Changes,
		Metadata:    metadata,
	})
}

// History returns the task's full audit trail, newest first. An unknown task
// yields an empty slice, not an error.
func (s *Service) History(ctx context.Context, taskID uuid.UUID) ([]models.AuditLog, error) {
	if taskID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "task id is required")
	}
	entries, err := s.repo.ListByTask(ctx, taskID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing audit entries")
	}
	return entries, nil
}

func describeAction(action enums.AuditAction) string {
	switch action {
	case enums.AuditActionCreated:
		return "task created"
	case enums.AuditActionUpdated:
		return "task updated"
	case enums.AuditActionDeleted:
		return "task deleted"
	case enums.AuditActionStatusChanged:
		return "task status changed"
	case enums.AuditActionAssigned:
		return "task assigned"
	case enums.AuditActionUnassigned:
		return "task unassigned"
	case enums.AuditActionCommented:
		return "comment added"
	default:
		return string(action)
	}
}
