package domain

import "time"

// QueryStatus is the lifecycle state of a query request.
type QueryStatus string

// Query request lifecycle statuses. PENDING is initial; REJECTED, EXECUTED,
// and FAILED are terminal. APPROVED is retained in the status domain for
// storage compatibility with older records but no transition ever sets it.
const (
	StatusPending  QueryStatus = "PENDING"
	StatusApproved QueryStatus = "APPROVED"
	StatusRejected QueryStatus = "REJECTED"
	StatusExecuted QueryStatus = "EXECUTED"
	StatusFailed   QueryStatus = "FAILED"
)

// Terminal reports whether the status admits no further transition.
func (s QueryStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// SubmissionType distinguishes ad hoc statements from sandboxed scripts.
type SubmissionType string

// Submission types.
const (
	SubmissionQuery  SubmissionType = "QUERY"
	SubmissionScript SubmissionType = "SCRIPT"
)

// QueryRequest is the unit of work flowing through the approval state machine.
type QueryRequest struct {
	ID              string
	RequesterID     int64
	PodID           int64
	InstanceID      int64
	DatabaseName    string
	SubmissionType  SubmissionType
	QueryText       string
	ScriptContent   string
	Comments        string
	Status          QueryStatus
	ApprovedBy      *int64
	RejectionReason *string
	ExecutionResult map[string]interface{}
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TerminalUpdate carries the fields written when a request leaves PENDING.
type TerminalUpdate struct {
	Status          QueryStatus
	ActorID         int64
	RejectionReason *string
	ExecutionResult map[string]interface{}
}

// RequestFilter holds filter parameters for listing query requests.
type RequestFilter struct {
	RequesterID *int64
	PodIDs      []int64
	Status      *QueryStatus
	Page        Page
}
