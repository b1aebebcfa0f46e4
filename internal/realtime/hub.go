package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tasktide/tasktide-backend/pkg/logger"
	"github.com/tasktide/tasktide-backend/pkg/metrics"
)

// PushMessage is the JSON frame delivered to subscribed connections.
type PushMessage struct {
	Event       string          `json:"event"`
	AggregateID string          `json:"aggregateId"`
	Data        json.RawMessage `json:"data"`
	Timestamp   int64           `json:"timestamp"`
}

// NewPushMessage builds a frame with a millisecond timestamp.
func NewPushMessage(event, aggregateID string, data json.RawMessage, at time.Time) PushMessage {
	return PushMessage{
		Event:       event,
		AggregateID: aggregateID,
		Data:        data,
		Timestamp:   at.UnixMilli(),
	}
}

// Hub tracks live connections and their room memberships and fans events out
// to them. Safe for concurrent use.
type Hub struct {
	logg *logger.Logger
	mtr  *metrics.EventingMetrics

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

func NewHub(logg *logger.Logger, mtr *metrics.EventingMetrics) *Hub {
	return &Hub{
		logg:    logg,
		mtr:     mtr,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register adds a freshly upgraded connection.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logg.Debug(h.logg.WithField(context.Background(), "client_id", client.ID), "realtime client registered")
}

// Unregister drops the connection from every room and stops its writer.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	for room, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	client.closeSend()
	h.logg.Debug(h.logg.WithField(context.Background(), "client_id", client.ID), "realtime client unregistered")
}

// Join subscribes a registered client to a room. Joining twice is a no-op.
func (h *Hub) Join(client *Client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
}

// Leave unsubscribes a client from a room.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomSize reports current membership, mainly for health introspection.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast delivers the message to the aggregate's room and to the global
// room. A client subscribed to both receives exactly one copy. A connection
// whose send buffer is full has the frame dropped; one slow consumer never
// delays the others.
func (h *Hub) Broadcast(msg PushMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logg.Error(context.Background(), "failed to encode push message", err)
		return
	}
	room := TaskRoom(msg.AggregateID)

	h.mu.RLock()
	recipients := make(map[*Client]string, len(h.rooms[GlobalRoom])+len(h.rooms[room]))
	for client := range h.rooms[GlobalRoom] {
		recipients[client] = GlobalRoom
	}
	for client := range h.rooms[room] {
		recipients[client] = room
	}
	h.mu.RUnlock()

	for client, channel := range recipients {
		if !client.enqueue(data) {
			h.mtr.IncPushFailure(channel)
			h.logg.Warn(h.logg.WithFields(context.Background(), map[string]any{
				"client_id": client.ID,
				"channel":   channel,
				"event":     msg.Event,
			}), "dropping push frame for slow consumer")
		}
	}
}
