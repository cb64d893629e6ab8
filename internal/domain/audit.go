package domain

import "time"

// AuditAction labels one lifecycle transition in the audit log.
type AuditAction string

// Audit actions, one per lifecycle transition.
const (
	AuditSubmitted AuditAction = "SUBMITTED"
	AuditApproved  AuditAction = "APPROVED"
	AuditRejected  AuditAction = "REJECTED"
	AuditExecuted  AuditAction = "EXECUTED"
	AuditFailed    AuditAction = "FAILED"
)

// AuditEntry is one append-only record per lifecycle transition. Details is a
// denormalized snapshot of pod/instance/database names taken at write time so
// history survives later renames. Entries are never updated or deleted.
type AuditEntry struct {
	ID             int64
	QueryRequestID string
	Action         AuditAction
	PerformedBy    int64
	Details        map[string]interface{}
	CreatedAt      time.Time
}

// AuditFilter holds filter parameters for listing audit entries.
type AuditFilter struct {
	QueryRequestID *string
	Action         *AuditAction
	PerformedBy    *int64
	Page           Page
}
