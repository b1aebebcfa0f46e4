package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tasktide/tasktide-backend/pkg/db/models"
	"github.com/tasktide/tasktide-backend/pkg/enums"
	"github.com/tasktide/tasktide-backend/pkg/events"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

type fakeGuard struct {
	duplicate bool
	checkErr  error
	marked    []uuid.UUID
	deleted   []uuid.UUID
}

func (g *fakeGuard) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if g.checkErr != nil {
		return false, g.checkErr
	}
	if g.duplicate {
		return true, nil
	}
	g.marked = append(g.marked, eventID)
	return false, nil
}

func (g *fakeGuard) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	g.deleted = append(g.deleted, eventID)
	return nil
}

type failingRepo struct{ err error }

func (r *failingRepo) Insert(ctx context.Context, row *models.Notification) error { return r.err }

func testRepo(t *testing.T) *Repo {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Notification{}))
	return NewRepo(conn)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "notifications-test", Output: discardWriter{}})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func envelopeFor(t *testing.T, eventType enums.EventType, payload any) events.Envelope {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Envelope{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		AggregateID: uuid.NewString(),
		Payload:     body,
		Timestamp:   time.Now().UTC(),
	}
}

func TestHandleTaskAssignedMaterializesRow(t *testing.T) {
	repo := testRepo(t)
	guard := &fakeGuard{}
	worker, err := NewWorker(repo, guard, testLogger())
	require.NoError(t, err)

	taskID := uuid.New()
	assigneeID := uuid.New()
	envelope := envelopeFor(t, enums.EventTaskAssigned, events.TaskAssignedPayload{
		TaskID:     taskID,
		AssigneeID: &assigneeID,
	})

	require.NoError(t, worker.Handle(context.Background(), envelope))

	rows, err := repo.ListByUser(context.Background(), assigneeID, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Task assigned to you", rows[0].Title)
	require.Equal(t, &taskID, rows[0].TaskID)
	require.NotNil(t, rows[0].Link)
	require.Equal(t, "/tasks/"+taskID.String(), *rows[0].Link)
	require.Len(t, guard.marked, 1)
}

func TestHandleSuppressesDuplicates(t *testing.T) {
	repo := testRepo(t)
	worker, _ := NewWorker(repo, &fakeGuard{duplicate: true}, testLogger())

	assigneeID := uuid.New()
	envelope := envelopeFor(t, enums.EventTaskAssigned, events.TaskAssignedPayload{
		TaskID:     uuid.New(),
		AssigneeID: &assigneeID,
	})

	require.NoError(t, worker.Handle(context.Background(), envelope))

	rows, err := repo.ListByUser(context.Background(), assigneeID, false)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestHandleProcessesWhenGuardUnavailable(t *testing.T) {
	repo := testRepo(t)
	worker, _ := NewWorker(repo, &fakeGuard{checkErr: errors.New("redis down")}, testLogger())

	assigneeID := uuid.New()
	envelope := envelopeFor(t, enums.EventTaskAssigned, events.TaskAssignedPayload{
		TaskID:     uuid.New(),
		AssigneeID: &assigneeID,
	})

	require.NoError(t, worker.Handle(context.Background(), envelope))

	rows, err := repo.ListByUser(context.Background(), assigneeID, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestHandleRedeliveryWithoutGuardStaysIdempotent(t *testing.T) {
	repo := testRepo(t)
	worker, _ := NewWorker(repo, &fakeGuard{checkErr: errors.New("redis down")}, testLogger())

	assigneeID := uuid.New()
	envelope := envelopeFor(t, enums.EventTaskAssigned, events.TaskAssignedPayload{
		TaskID:     uuid.New(),
		AssigneeID: &assigneeID,
	})

	// Same envelope delivered twice: row IDs derive from the event ID, so the
	// second insert hits the primary key and is absorbed.
	require.NoError(t, worker.Handle(context.Background(), envelope))
	require.NoError(t, worker.Handle(context.Background(), envelope))

	rows, err := repo.ListByUser(context.Background(), assigneeID, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestHandleClearsMarkerOnInsertFailure(t *testing.T) {
	guard := &fakeGuard{}
	worker, _ := NewWorker(&failingRepo{err: errors.New("disk full")}, guard, testLogger())

	assigneeID := uuid.New()
	envelope := envelopeFor(t, enums.EventTaskAssigned, events.TaskAssignedPayload{
		TaskID:     uuid.New(),
		AssigneeID: &assigneeID,
	})

	err := worker.Handle(context.Background(), envelope)
	require.Error(t, err)
	require.Len(t, guard.deleted, 1, "marker must be cleared so a redelivery can retry")
}

func TestHandleCommentNotifiesTaskOwner(t *testing.T) {
	repo := testRepo(t)
	worker, _ := NewWorker(repo, &fakeGuard{}, testLogger())

	ownerID := uuid.New()
	envelope := envelopeFor(t, enums.EventCommentCreated, events.CommentCreatedPayload{
		CommentID:   uuid.New(),
		TaskID:      uuid.New(),
		AuthorID:    uuid.New(),
		TaskOwnerID: ownerID,
		Body:        "looks good",
	})

	require.NoError(t, worker.Handle(context.Background(), envelope))

	rows, err := repo.ListByUser(context.Background(), ownerID, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "looks good", rows[0].Message)
}

func TestHandleSkipsSelfComment(t *testing.T) {
	repo := testRepo(t)
	worker, _ := NewWorker(repo, &fakeGuard{}, testLogger())

	authorID := uuid.New()
	envelope := envelopeFor(t, enums.EventCommentCreated, events.CommentCreatedPayload{
		CommentID:   uuid.New(),
		TaskID:      uuid.New(),
		AuthorID:    authorID,
		TaskOwnerID: authorID,
		Body:        "note to self",
	})

	require.NoError(t, worker.Handle(context.Background(), envelope))

	rows, err := repo.ListByUser(context.Background(), authorID, false)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestHandleWelcomesNewUser(t *testing.T) {
	repo := testRepo(t)
	worker, _ := NewWorker(repo, &fakeGuard{}, testLogger())

	userID := uuid.New()
	envelope := envelopeFor(t, enums.EventUserRegistered, events.UserRegisteredPayload{
		UserID: userID,
		Email:  "dev@example.com",
		Name:   "Dev",
	})

	require.NoError(t, worker.Handle(context.Background(), envelope))

	rows, err := repo.ListByUser(context.Background(), userID, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Nil(t, rows[0].TaskID)
}

func TestHandleAcksEventsWithoutNotificationSemantics(t *testing.T) {
	repo := testRepo(t)
	worker, _ := NewWorker(repo, &fakeGuard{}, testLogger())

	envelope := envelopeFor(t, enums.EventTaskDeleted, events.TaskDeletedPayload{TaskID: uuid.New()})
	require.NoError(t, worker.Handle(context.Background(), envelope))
}

func TestHandleRejectsMalformedEventID(t *testing.T) {
	worker, _ := NewWorker(testRepo(t), &fakeGuard{}, testLogger())

	envelope := envelopeFor(t, enums.EventTaskDeleted, events.TaskDeletedPayload{TaskID: uuid.New()})
	envelope.EventID = "not-a-uuid"

	require.Error(t, worker.Handle(context.Background(), envelope))
}

func TestMarkRead(t *testing.T) {
	repo := testRepo(t)
	userID := uuid.New()
	row := &models.Notification{ID: uuid.New(), UserID: userID, Title: "t", Message: "m"}
	require.NoError(t, repo.Insert(context.Background(), row))

	require.NoError(t, repo.MarkRead(context.Background(), row.ID, userID))

	unread, err := repo.ListByUser(context.Background(), userID, true)
	require.NoError(t, err)
	require.Empty(t, unread)

	// Second read attempt and foreign user are both not-found.
	require.Error(t, repo.MarkRead(context.Background(), row.ID, userID))
	require.Error(t, repo.MarkRead(context.Background(), row.ID, uuid.New()))
}
