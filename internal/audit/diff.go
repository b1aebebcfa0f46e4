package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/tasktide/tasktide-backend/pkg/enums"
)

// TaskState is the snapshot of tracked task fields used for diffing. Fields
// outside this set are invisible to auditing: a deliberate scope limitation,
// not an oversight.
type TaskState struct {
	Status      string
	Priority    string
	Title       string
	Description string
	DueDate     *time.Time
}

// FieldChange is one before/after pair in an audit entry.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// UpdateDiff is the outcome of comparing two task snapshots.
type UpdateDiff struct {
	Action      enums.AuditAction
	Description string
	Changes     map[string]FieldChange
}

// Empty reports whether no tracked field differs. An empty diff records
// nothing: metadata-only changes produce no audit trail.
func (d UpdateDiff) Empty() bool {
	return len(d.Changes) == 0
}

// ComputeUpdateDiff compares old and new state field by field. A status
// transition promotes the action to STATUS_CHANGED; any other tracked change
// yields UPDATED.
func ComputeUpdateDiff(oldState, newState TaskState) UpdateDiff {
	changes := map[string]FieldChange{}
	var fragments []string

	if oldState.Status != newState.Status {
		changes["status"] = FieldChange{From: oldState.Status, To: newState.Status}
		fragments = append(fragments, fmt.Sprintf("status changed from %s to %s", oldState.Status, newState.Status))
	}
	if oldState.Priority != newState.Priority {
		changes["priority"] = FieldChange{From: oldState.Priority, To: newState.Priority}
		fragments = append(fragments, fmt.Sprintf("priority changed from %s to %s", oldState.Priority, newState.Priority))
	}
	if oldState.Title != newState.Title {
		changes["title"] = FieldChange{From: oldState.Title, To: newState.Title}
		fragments = append(fragments, "title updated")
	}
	if oldState.Description != newState.Description {
		changes["description"] = FieldChange{From: oldState.Description, To: newState.Description}
		fragments = append(fragments, "description updated")
	}
	if !equalDueDates(oldState.DueDate, newState.DueDate) {
		changes["dueDate"] = FieldChange{From: formatDueDate(oldState.DueDate), To: formatDueDate(newState.DueDate)}
		fragments = append(fragments, fmt.Sprintf("due date changed from %s to %s", formatDueDate(oldState.DueDate), formatDueDate(newState.DueDate)))
	}

	action := enums.AuditActionUpdated
	if _, ok := changes["status"]; ok {
		action = enums.AuditActionStatusChanged
	}

	return UpdateDiff{
		Action:      action,
		Description: strings.Join(fragments, "; "),
		Changes:     changes,
	}
}

func equalDueDates(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatDueDate(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format("2006-01-02")
}
