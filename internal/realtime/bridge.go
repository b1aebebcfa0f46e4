package realtime

import (
	"context"
	"errors"

	"github.com/tasktide/tasktide-backend/pkg/events"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

// Bridge rebroadcasts consumed domain events onto the hub. It is the handler
// armed on the realtime queue.
type Bridge struct {
	hub  *Hub
	logg *logger.Logger
}

func NewBridge(hub *Hub, logg *logger.Logger) (*Bridge, error) {
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Bridge{hub: hub, logg: logg}, nil
}

// Handle maps the envelope onto a push frame and broadcasts it. Event types
// with no client-facing name are acked silently; the queue bindings decide
// what arrives here, not this handler.
func (b *Bridge) Handle(ctx context.Context, envelope events.Envelope) error {
	name, ok := PushName(envelope.EventType)
	if !ok {
		b.logg.Debug(b.logg.WithEventType(ctx, string(envelope.EventType)), "no push mapping for event type")
		return nil
	}

	b.hub.Broadcast(NewPushMessage(name, envelope.AggregateID, envelope.Payload, envelope.Timestamp))
	return nil
}
