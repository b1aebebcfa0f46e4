package enums

import "fmt"

// EventType is the closed set of routing keys published to the domain-events
// exchange. Values are dot-separated so topic bindings like `task.#` match.
type EventType string

const (
	EventTaskCreated    EventType = "task.created"
	EventTaskUpdated    EventType = "task.updated"
	EventTaskDeleted    EventType = "task.deleted"
	EventTaskAssigned   EventType = "task.assigned"
	EventCommentCreated EventType = "comment.created"
	EventUserRegistered EventType = "user.registered"
)

var validEventTypes = []EventType{
	EventTaskCreated,
	EventTaskUpdated,
	EventTaskDeleted,
	EventTaskAssigned,
	EventCommentCreated,
	EventUserRegistered,
}

// EventTypes returns the full enumeration in declaration order.
func EventTypes() []EventType {
	out := make([]EventType, len(validEventTypes))
	copy(out, validEventTypes)
	return out
}

// IsValid reports whether the value matches a known routing key.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
