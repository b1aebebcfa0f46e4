package realtime

import (
	"github.com/tasktide/tasktide-backend/pkg/enums"
)

// GlobalRoom receives every task and comment event, for board-style views
// that watch the whole workspace.
const GlobalRoom = "tasks"

// TaskRoom names the per-task room for detail views.
func TaskRoom(taskID string) string {
	return "task-" + taskID
}

// pushNames maps broker routing keys onto the colon-separated event names the
// frontend listens for. comment.created is the historical odd one out.
var pushNames = map[enums.EventType]string{
	enums.EventTaskCreated:    "task:created",
	enums.EventTaskUpdated:    "task:updated",
	enums.EventTaskDeleted:    "task:deleted",
	enums.EventTaskAssigned:   "task:assigned",
	enums.EventCommentCreated: "comment:new",
	enums.EventUserRegistered: "user:registered",
}

// PushName resolves the client-facing event name for a broker event type.
func PushName(eventType enums.EventType) (string, bool) {
	name, ok := pushNames[eventType]
	return name, ok
}
