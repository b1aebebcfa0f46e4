package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tasktide/tasktide-backend/pkg/enums"
)

// AuditLog is one immutable ledger entry describing a tracked task mutation.
// Rows are never updated; they only disappear when the owning task is
// destroyed and the delete cascades.
type AuditLog struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Action      enums.AuditAction `gorm:"column:action;type:text;not null"`
	Description string            `gorm:"column:description;type:text;not null"`
	Changes     json.RawMessage   `gorm:"column:changes;type:jsonb"`
	Metadata    json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	TaskID      uuid.UUID         `gorm:"column:task_id;type:uuid;not null;index"`
	UserID      *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
