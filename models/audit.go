package models

import "time"

// AuditAction identifies the kind of moderation action recorded.
type AuditAction string

const (
	AuditApprove AuditAction = "APPROVE"
	AuditRefuse  AuditAction = "REFUSE"
	AuditReset   AuditAction = "RESET"
	AuditDelete  AuditAction = "DELETE"
)

// AuditEntry is one append-only record of a moderation action.
type AuditEntry struct {
	ID             int         `json:"id"`
	Action         AuditAction `json:"action"`
	TargetID       *int64      `json:"target_id,omitempty"`
	TargetUsername string      `json:"target_username"`
	ActorID        int64       `json:"actor_id"`
	ActorUsername  string      `json:"actor_username"`
	Details        *string     `json:"details,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
