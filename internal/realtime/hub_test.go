package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tasktide/tasktide-backend/pkg/config"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

func testWSConfig() config.WSConfig {
	return config.WSConfig{
		SendBuffer:      8,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageBytes: 4096,
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "realtime-test", Output: discardWriter{}})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// testClient builds a registered client without a live connection; only the
// send buffer is exercised.
func testClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := NewClient(hub, nil, uuid.NewString(), testWSConfig(), testLogger())
	hub.Register(client)
	return client
}

func receiveFrame(t *testing.T, client *Client) PushMessage {
	t.Helper()
	select {
	case data := <-client.send:
		var msg PushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decoding frame: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return PushMessage{}
	}
}

func samplePush(taskID string) PushMessage {
	return NewPushMessage("task:created", taskID, json.RawMessage(`{"title":"Ship it"}`), time.Date(2025, 8, 12, 10, 30, 0, 0, time.UTC))
}

func TestBroadcastReachesTaskRoom(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	taskID := uuid.NewString()

	member := testClient(t, hub)
	outsider := testClient(t, hub)
	hub.Join(member, TaskRoom(taskID))

	hub.Broadcast(samplePush(taskID))

	frame := receiveFrame(t, member)
	if frame.Event != "task:created" || frame.AggregateID != taskID {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if frame.Timestamp != time.Date(2025, 8, 12, 10, 30, 0, 0, time.UTC).UnixMilli() {
		t.Fatalf("timestamp = %d", frame.Timestamp)
	}
	if len(outsider.send) != 0 {
		t.Fatal("clients outside the room must not receive the frame")
	}
}

func TestBroadcastReachesGlobalRoom(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	watcher := testClient(t, hub)
	hub.Join(watcher, GlobalRoom)

	hub.Broadcast(samplePush(uuid.NewString()))

	frame := receiveFrame(t, watcher)
	if frame.Event != "task:created" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestBroadcastDeliversExactlyOnceToDualSubscribers(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	taskID := uuid.NewString()

	client := testClient(t, hub)
	hub.Join(client, GlobalRoom)
	hub.Join(client, TaskRoom(taskID))

	hub.Broadcast(samplePush(taskID))

	receiveFrame(t, client)
	if len(client.send) != 0 {
		t.Fatalf("client received %d extra frames, want exactly one copy", len(client.send))
	}
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	taskID := uuid.NewString()

	leaver := testClient(t, hub)
	stayer := testClient(t, hub)
	hub.Join(leaver, TaskRoom(taskID))
	hub.Join(leaver, GlobalRoom)
	hub.Join(stayer, TaskRoom(taskID))

	hub.Unregister(leaver)

	if hub.RoomSize(TaskRoom(taskID)) != 1 {
		t.Fatalf("room size = %d, want 1", hub.RoomSize(TaskRoom(taskID)))
	}
	if hub.RoomSize(GlobalRoom) != 0 {
		t.Fatal("global room should be empty after unregister")
	}

	hub.Broadcast(samplePush(taskID))
	receiveFrame(t, stayer)
}

func TestBroadcastAfterUnregisterDoesNotPanic(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	client := testClient(t, hub)
	hub.Join(client, GlobalRoom)
	hub.Unregister(client)

	hub.Broadcast(samplePush(uuid.NewString()))

	if client.enqueue([]byte("late")) != true {
		t.Fatal("enqueue on a closed client should be a silent no-op")
	}
}

func TestJoinIgnoresUnknownClient(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	stranger := NewClient(hub, nil, "", testWSConfig(), testLogger())

	hub.Join(stranger, GlobalRoom)

	if hub.RoomSize(GlobalRoom) != 0 {
		t.Fatal("unregistered clients must not join rooms")
	}
}

func TestSlowConsumerFramesDropped(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	cfg := testWSConfig()
	cfg.SendBuffer = 1
	slow := NewClient(hub, nil, "", cfg, testLogger())
	hub.Register(slow)
	hub.Join(slow, GlobalRoom)

	hub.Broadcast(samplePush(uuid.NewString()))
	hub.Broadcast(samplePush(uuid.NewString()))

	if len(slow.send) != 1 {
		t.Fatalf("buffered frames = %d, want 1: overflow must be dropped, not block", len(slow.send))
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	taskID := uuid.NewString()
	client := testClient(t, hub)
	hub.Join(client, TaskRoom(taskID))
	hub.Leave(client, TaskRoom(taskID))

	hub.Broadcast(samplePush(taskID))

	if len(client.send) != 0 {
		t.Fatal("frames must not reach a client that left the room")
	}
}

func TestControlMessagesDriveMembership(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	client := testClient(t, hub)
	taskID := uuid.NewString()

	client.handleControl(t.Context(), []byte(`{"type":"join-task","taskId":"`+taskID+`"}`))
	if hub.RoomSize(TaskRoom(taskID)) != 1 {
		t.Fatal("join-task should add room membership")
	}

	client.handleControl(t.Context(), []byte(`{"type":"join-board"}`))
	if hub.RoomSize(GlobalRoom) != 1 {
		t.Fatal("join-board should add global membership")
	}

	client.handleControl(t.Context(), []byte(`{"type":"leave-task","taskId":"`+taskID+`"}`))
	if hub.RoomSize(TaskRoom(taskID)) != 0 {
		t.Fatal("leave-task should remove room membership")
	}
}

func TestControlMessageValidation(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	client := testClient(t, hub)

	// Malformed JSON, unknown action, bad task id and missing task id are all
	// ignored without touching membership.
	for _, raw := range []string{
		`{not json`,
		`{"type":"explode"}`,
		`{"type":"join-task","taskId":"not-a-uuid"}`,
		`{"type":"join-task"}`,
	} {
		client.handleControl(t.Context(), []byte(raw))
	}

	if hub.RoomSize(GlobalRoom) != 0 {
		t.Fatal("invalid control messages must not change membership")
	}
	hub.mu.RLock()
	rooms := len(hub.rooms)
	hub.mu.RUnlock()
	if rooms != 0 {
		t.Fatalf("rooms = %d, want none", rooms)
	}
}
