package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tasktide/tasktide-backend/pkg/enums"
)

// ValueChange is one before/after pair inside an update payload.
type ValueChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// TaskCreatedPayload accompanies task.created.
type TaskCreatedPayload struct {
	TaskID     uuid.UUID  `json:"taskId"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	CreatorID  uuid.UUID  `json:"creatorId"`
	AssigneeID *uuid.UUID `json:"assigneeId,omitempty"`
}

// TaskUpdatedPayload accompanies task.updated.
type TaskUpdatedPayload struct {
	TaskID  uuid.UUID              `json:"taskId"`
	Changes map[string]ValueChange `json:"changes"`
}

// TaskDeletedPayload accompanies task.deleted.
type TaskDeletedPayload struct {
	TaskID uuid.UUID `json:"taskId"`
}

// TaskAssignedPayload accompanies task.assigned.
type TaskAssignedPayload struct {
	TaskID     uuid.UUID  `json:"taskId"`
	AssigneeID *uuid.UUID `json:"assigneeId"`
}

// CommentCreatedPayload accompanies comment.created. TaskOwnerID rides along
// so downstream consumers can resolve the notification recipient without a
// task lookup.
type CommentCreatedPayload struct {
	CommentID   uuid.UUID `json:"commentId"`
	TaskID      uuid.UUID `json:"taskId"`
	AuthorID    uuid.UUID `json:"authorId"`
	TaskOwnerID uuid.UUID `json:"taskOwnerId"`
	Body        string    `json:"body"`
}

// UserRegisteredPayload accompanies user.registered.
type UserRegisteredPayload struct {
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
}

type decoderFunc func(payload json.RawMessage) (any, error)

// DecoderRegistry maps each event type to its typed payload decoder, so
// consumers work with a tagged union instead of raw JSON.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[enums.EventType]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[enums.EventType]decoderFunc)}
}

func (r *DecoderRegistry) Register(eventType enums.EventType, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[eventType] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.EventType, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[eventType]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s", eventType)
}

func decodeInto[T any](payload json.RawMessage) (any, error) {
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// NewDefaultRegistry returns a registry covering the full event type
// enumeration.
func NewDefaultRegistry() *DecoderRegistry {
	registry := NewDecoderRegistry()
	registry.Register(enums.EventTaskCreated, decodeInto[TaskCreatedPayload])
	registry.Register(enums.EventTaskUpdated, decodeInto[TaskUpdatedPayload])
	registry.Register(enums.EventTaskDeleted, decodeInto[TaskDeletedPayload])
	registry.Register(enums.EventTaskAssigned, decodeInto[TaskAssignedPayload])
	registry.Register(enums.EventCommentCreated, decodeInto[CommentCreatedPayload])
	registry.Register(enums.EventUserRegistered, decodeInto[UserRegisteredPayload])
	return registry
}
