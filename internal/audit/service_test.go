package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tasktide/tasktide-backend/pkg/db/models"
	"github.com/tasktide/tasktide-backend/pkg/enums"
	apperrors "github.com/tasktide/tasktide-backend/pkg/errors"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

func testService(t *testing.T) (*Service, *Repo) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.AuditLog{}))

	repo := NewRepo(conn)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	return svc, repo
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "audit-test", Output: discardWriter{}})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRecordPersistsEntry(t *testing.T) {
	svc, repo := testService(t)
	taskID := uuid.New()
	actorID := uuid.New()

	entry, err := svc.Record(context.Background(), RecordInput{
		Action:  enums.AuditActionCreated,
		TaskID:  taskID,
		UserID:  &actorID,
		Changes: map[string]FieldChange{"status": {From: nil, To: "TODO"}},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, entry.ID)
	require.Equal(t, "task created", entry.Description)

	stored, err := repo.ListByTask(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, enums.AuditActionCreated, stored[0].Action)
	require.Equal(t, &actorID, stored[0].UserID)

	var changes map[string]FieldChange
	require.NoError(t, json.Unmarshal(stored[0].Changes, &changes))
	require.Equal(t, "TODO", changes["status"].To)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.Record(context.Background(), RecordInput{Action: "EXPLODED", TaskID: uuid.New()})
	require.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())

	_, err = svc.Record(context.Background(), RecordInput{Action: enums.AuditActionCreated})
	require.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())
}

func TestRecordUpdateWritesDiffEntry(t *testing.T) {
	svc, _ := testService(t)
	taskID := uuid.New()

	entry, err := svc.RecordUpdate(context.Background(), taskID, nil,
		TaskState{Status: "TODO", Title: "Ship it"},
		TaskState{Status: "IN_PROGRESS", Title: "Ship it"},
		json.RawMessage(`{"source":"api"}`))
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, enums.AuditActionStatusChanged, entry.Action)
	require.Equal(t, "status changed from TODO to IN_PROGRESS", entry.Description)
	require.Nil(t, entry.UserID)

	history, err := svc.History(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestRecordUpdateSkipsEmptyDiff(t *testing.T) {
	svc, _ := testService(t)
	taskID := uuid.New()
	state := TaskState{Status: "TODO", Priority: "HIGH", Title: "Ship it"}

	entry, err := svc.RecordUpdate(context.Background(), taskID, nil, state, state, nil)
	require.NoError(t, err)
	require.Nil(t, entry)

	history, err := svc.History(context.Background(), taskID)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestHistoryReturnsNewestFirst(t *testing.T) {
	svc, repo := testService(t)
	taskID := uuid.New()
	base := time.Date(2025, 8, 12, 10, 0, 0, 0, time.UTC)

	for i, action := range []enums.AuditAction{enums.AuditActionCreated, enums.AuditActionStatusChanged, enums.AuditActionCommented} {
		require.NoError(t, repo.Insert(context.Background(), &models.AuditLog{
			ID:          uuid.New(),
			Action:      action,
			Description: describeAction(action),
			TaskID:      taskID,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	history, err := svc.History(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, enums.AuditActionCommented, history[0].Action)
	require.Equal(t, enums.AuditActionCreated, history[2].Action)
}

func TestHistoryScopedToTask(t *testing.T) {
	svc, repo := testService(t)
	taskID := uuid.New()
	otherID := uuid.New()

	require.NoError(t, repo.Insert(context.Background(), &models.AuditLog{
		ID: uuid.New(), Action: enums.AuditActionCreated, Description: "task created", TaskID: taskID,
	}))
	require.NoError(t, repo.Insert(context.Background(), &models.AuditLog{
		ID: uuid.New(), Action: enums.AuditActionDeleted, Description: "task deleted", TaskID: otherID,
	}))

	history, err := svc.History(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, taskID, history[0].TaskID)
}
