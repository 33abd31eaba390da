package domain

import "time"

type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
	AuditSync   AuditAction = "SYNC"
	AuditPolicy AuditAction = "POLICY"
)

// AuditEntry is immutable once appended.
type AuditEntry struct {
	ID         string      `json:"id"`
	Action     AuditAction `json:"action"`
	Details    string      `json:"details"`
	User       string      `json:"user"`
	Timestamp  time.Time   `json:"timestamp"`
	ResourceID string      `json:"resourceId,omitempty"`
}
