package events

import (
	"encoding/json"
	"time"

	"github.com/tasktide/tasktide-backend/pkg/enums"
)

// Envelope is the unit of cross-process communication: one state change,
// serialized to JSON on the wire. An envelope is immutable once handed to the
// broker; nothing mutates it after publish.
type Envelope struct {
	EventID     string          `json:"eventId"`
	EventType   enums.EventType `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}
