package notifications

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tasktide/tasktide-backend/pkg/db/models"
	apperrors "github.com/tasktide/tasktide-backend/pkg/errors"
)

// Repo persists materialized notification rows.
type Repo struct {
	conn *gorm.DB
}

func NewRepo(conn *gorm.DB) *Repo {
	return &Repo{conn: conn}
}

func (r *Repo) Insert(ctx context.Context, row *models.Notification) error {
	return r.conn.WithContext(ctx).Create(row).Error
}

// ListByUser returns the user's notifications, newest first.
func (r *Repo) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Notification, error) {
	query := r.conn.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}
	var rows []models.Notification
	err := query.Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// MarkRead stamps read_at on one notification owned by the user.
func (r *Repo) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	result := r.conn.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, "notification not found or already read")
	}
	return nil
}
