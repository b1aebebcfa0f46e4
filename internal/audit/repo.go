package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tasktide/tasktide-backend/pkg/db/models"
)

// Repo persists the audit ledger. Entries are insert-only.
type Repo struct {
	conn *gorm.DB
}

func NewRepo(conn *gorm.DB) *Repo {
	return &Repo{conn: conn}
}

func (r *Repo) Insert(ctx context.Context, entry *models.AuditLog) error {
	return r.conn.WithContext(ctx).Create(entry).Error
}

// ListByTask returns all entries for a task, newest first.
func (r *Repo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.conn.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}
