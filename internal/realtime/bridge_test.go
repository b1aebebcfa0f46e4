package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tasktide/tasktide-backend/pkg/enums"
	"github.com/tasktide/tasktide-backend/pkg/events"
)

func TestPushNameCoversEveryEventType(t *testing.T) {
	for _, eventType := range enums.EventTypes() {
		if _, ok := PushName(eventType); !ok {
			t.Fatalf("no push name for %s", eventType)
		}
	}
}

func TestPushNameMapping(t *testing.T) {
	cases := map[enums.EventType]string{
		enums.EventTaskCreated:    "task:created",
		enums.EventTaskUpdated:    "task:updated",
		enums.EventTaskDeleted:    "task:deleted",
		enums.EventTaskAssigned:   "task:assigned",
		enums.EventCommentCreated: "comment:new",
		enums.EventUserRegistered: "user:registered",
	}
	for eventType, want := range cases {
		got, ok := PushName(eventType)
		if !ok || got != want {
			t.Fatalf("PushName(%s) = %q, want %q", eventType, got, want)
		}
	}
}

func TestBridgeBroadcastsConsumedEvent(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	bridge, err := NewBridge(hub, testLogger())
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}

	taskID := uuid.NewString()
	subscriber := testClient(t, hub)
	hub.Join(subscriber, TaskRoom(taskID))

	payload, _ := json.Marshal(events.TaskCreatedPayload{TaskID: uuid.MustParse(taskID), Title: "Ship it"})
	envelope := events.Envelope{
		EventID:     uuid.NewString(),
		EventType:   enums.EventTaskCreated,
		AggregateID: taskID,
		Payload:     payload,
		Timestamp:   time.Date(2025, 8, 12, 10, 30, 0, 0, time.UTC),
	}

	if err := bridge.Handle(context.Background(), envelope); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	frame := receiveFrame(t, subscriber)
	if frame.Event != "task:created" {
		t.Fatalf("event = %q", frame.Event)
	}
	if frame.AggregateID != taskID {
		t.Fatalf("aggregate id = %q", frame.AggregateID)
	}
	if string(frame.Data) != string(payload) {
		t.Fatalf("payload not forwarded verbatim: %s", frame.Data)
	}
	if len(subscriber.send) != 0 {
		t.Fatal("subscriber must receive exactly one frame")
	}
}

func TestBridgeAcksUnmappedEventType(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	bridge, _ := NewBridge(hub, testLogger())

	err := bridge.Handle(context.Background(), events.Envelope{
		EventID:     uuid.NewString(),
		EventType:   enums.EventType("task.archived"),
		AggregateID: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("unmapped event types must be acked, got %v", err)
	}
}
