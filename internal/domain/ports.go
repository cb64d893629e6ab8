package domain

import "context"

// QueryRequestRepository persists query requests.
// Implemented by repository.RequestRepo.
type QueryRequestRepository interface {
	Create(ctx context.Context, req *QueryRequest) (*QueryRequest, error)
	GetByID(ctx context.Context, id string) (*QueryRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]QueryRequest, int64, error)
	// SetTerminal writes the terminal status, actor, and result snapshot.
	// The write is conditional on the row still being PENDING; a request
	// already in a terminal state returns ConflictError.
	SetTerminal(ctx context.Context, id string, update TerminalUpdate) error
}

// InstanceRepository provides read access to managed database instances.
// Credentials are decrypted by the repository before the descriptor is
// returned.
type InstanceRepository interface {
	FindByID(ctx context.Context, id int64) (*DbInstance, error)
	Create(ctx context.Context, inst *DbInstance) (*DbInstance, error)
	List(ctx context.Context) ([]DbInstance, error)
}

// UserRepository provides principal lookup.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u *User) (*User, error)
}

// PodRepository provides pod lookup and manager scoping.
type PodRepository interface {
	FindByID(ctx context.Context, id int64) (*Pod, error)
	Create(ctx context.Context, p *Pod) (*Pod, error)
	// ListManagedBy returns the pods whose manager is the given user.
	ListManagedBy(ctx context.Context, managerID int64) ([]Pod, error)
}

// AuditRepository is the append-only transition log. The core only writes;
// the read path exists for operator tooling, never for decision-making.
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)
}

// RequestInfo is the denormalized view of a request handed to the notifier,
// so notifications render names rather than ids.
type RequestInfo struct {
	Request       QueryRequest
	RequesterName string
	PodName       string
	InstanceName  string
}

// Notifier is the best-effort side-channel alert sink. Every call may fail;
// callers must treat failures as log-and-continue.
type Notifier interface {
	NotifyNewSubmission(ctx context.Context, info RequestInfo) error
	NotifyExecutionSuccess(ctx context.Context, info RequestInfo, result map[string]interface{}, approverName string) error
	NotifyExecutionFailure(ctx context.Context, info RequestInfo, execErr error, approverName string) error
	// NotifyRejection is addressed to the original requester only, never
	// broadcast.
	NotifyRejection(ctx context.Context, info RequestInfo, reason, rejecterName string) error
}

// ExecutionDispatcher routes an approved request to the executor matching its
// {database type, submission type} pair.
// Implemented by executor.Dispatcher.
type ExecutionDispatcher interface {
	Execute(ctx context.Context, inst *DbInstance, req *QueryRequest) (map[string]interface{}, error)
}
