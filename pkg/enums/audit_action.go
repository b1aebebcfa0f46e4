package enums

import "fmt"

// AuditAction maps to the audit_action enum in Postgres.
type AuditAction string

const (
	AuditActionCreated       AuditAction = "CREATED"
	AuditActionUpdated       AuditAction = "UPDATED"
	AuditActionDeleted       AuditAction = "DELETED"
	AuditActionStatusChanged AuditAction = "STATUS_CHANGED"
	AuditActionAssigned      AuditAction = "ASSIGNED"
	AuditActionUnassigned    AuditAction = "UNASSIGNED"
	AuditActionCommented     AuditAction = "COMMENTED"
)

var validAuditActions = []AuditAction{
	AuditActionCreated,
	AuditActionUpdated,
	AuditActionDeleted,
	AuditActionStatusChanged,
	AuditActionAssigned,
	AuditActionUnassigned,
	AuditActionCommented,
}

// IsValid reports whether the value matches the canonical audit_action enum.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts raw input into AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}
