// Package service implements the approval state machine and its read paths.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"opsgate/internal/domain"
)

// ApprovalService owns the query request lifecycle: PENDING on submit, then
// exactly one of EXECUTED, FAILED, or REJECTED. The only guard against double
// processing is the status condition on the terminal update: a lost race
// surfaces as "Query already processed".
type ApprovalService struct {
	requests   domain.QueryRequestRepository
	instances  domain.InstanceRepository
	users      domain.UserRepository
	pods       domain.PodRepository
	audit      domain.AuditRepository
	notifier   domain.Notifier
	dispatcher domain.ExecutionDispatcher
	logger     *slog.Logger
}

func NewApprovalService(
	requests domain.QueryRequestRepository,
	instances domain.InstanceRepository,
	users domain.UserRepository,
	pods domain.PodRepository,
	audit domain.AuditRepository,
	notifier domain.Notifier,
	dispatcher domain.ExecutionDispatcher,
	logger *slog.Logger,
) *ApprovalService {
	return &ApprovalService{
		requests:   requests,
		instances:  instances,
		users:      users,
		pods:       pods,
		audit:      audit,
		notifier:   notifier,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// SubmitInput carries the fields of a new query request.
type SubmitInput struct {
	RequesterID    int64
	PodID          int64
	InstanceID     int64
	DatabaseName   string
	SubmissionType domain.SubmissionType
	QueryText      string
	ScriptContent  string
	Comments       string
}

// Submit creates a PENDING request, appends a SUBMITTED audit entry, and
// fires a best-effort new-submission notification.
func (s *ApprovalService) Submit(ctx context.Context, input SubmitInput) (*domain.QueryRequest, error) {
	if err := validateSubmit(input); err != nil {
		return nil, err
	}

	requester, err := s.users.FindByID(ctx, input.RequesterID)
	if err != nil {
		return nil, err
	}
	pod, err := s.pods.FindByID(ctx, input.PodID)
	if err != nil {
		return nil, err
	}
	inst, err := s.instances.FindByID(ctx, input.InstanceID)
	if err != nil {
		return nil, err
	}

	req, err := s.requests.Create(ctx, &domain.QueryRequest{
		ID:             uuid.NewString(),
		RequesterID:    input.RequesterID,
		PodID:          input.PodID,
		InstanceID:     input.InstanceID,
		DatabaseName:   input.DatabaseName,
		SubmissionType: input.SubmissionType,
		QueryText:      input.QueryText,
		ScriptContent:  input.ScriptContent,
		Comments:       input.Comments,
	})
	if err != nil {
		return nil, err
	}

	info := domain.RequestInfo{
		Request:       *req,
		RequesterName: requester.Name,
		PodName:       pod.Name,
		InstanceName:  inst.Name,
	}

	s.logAudit(ctx, req, domain.AuditSubmitted, input.RequesterID, info, nil)
	s.notify("new submission", func() error {
		return s.notifier.NotifyNewSubmission(ctx, info)
	})

	s.logger.Info("query request submitted",
		"request_id", req.ID, "requester", requester.Name,
		"instance", inst.Name, "submission_type", req.SubmissionType)

	return req, nil
}

// ApproveResult is returned on a successful approve-and-execute.
type ApproveResult struct {
	Status domain.QueryStatus     `json:"status"`
	Result map[string]interface{} `json:"result"`
}

// Approve executes a PENDING request against its target instance. On success
// the request becomes EXECUTED; on execution failure the request becomes
// FAILED, the failure is audited and notified, and the original error is
// returned to the caller. Precondition errors from the dispatcher leave state
// untouched.
func (s *ApprovalService) Approve(ctx context.Context, queryID string, approverID int64) (*ApproveResult, error) {
	req, err := s.requests.GetByID(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusPending {
		return nil, domain.ErrConflict("Query already processed")
	}

	approver, err := s.users.FindByID(ctx, approverID)
	if err != nil {
		return nil, err
	}
	inst, err := s.instances.FindByID(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	info, err := s.buildInfo(ctx, req, inst)
	if err != nil {
		return nil, err
	}

	result, execErr := s.dispatcher.Execute(ctx, inst, req)
	if execErr != nil {
		// Structural precondition failures abort without any state write.
		var validationErr *domain.ValidationError
		if errors.As(execErr, &validationErr) {
			return nil, execErr
		}
		return nil, s.recordFailure(ctx, req, info, approver, result, execErr)
	}

	update := domain.TerminalUpdate{
		Status:          domain.StatusExecuted,
		ActorID:         approverID,
		ExecutionResult: result,
	}
	if err := s.requests.SetTerminal(ctx, req.ID, update); err != nil {
		return nil, err
	}

	s.logAudit(ctx, req, domain.AuditExecuted, approverID, info, nil)
	s.notify("execution success", func() error {
		return s.notifier.NotifyExecutionSuccess(ctx, info, result, approver.Name)
	})

	s.logger.Info("query request executed",
		"request_id", req.ID, "approver", approver.Name)

	return &ApproveResult{Status: domain.StatusExecuted, Result: result}, nil
}

// recordFailure durably records the FAILED state, audits and notifies, then
// returns the original execution error so the caller still observes the
// failure. Any partial result from the dispatcher (a failed script's collected
// logs) is folded into the recorded execution result and the audit entry.
func (s *ApprovalService) recordFailure(ctx context.Context, req *domain.QueryRequest, info domain.RequestInfo, approver *domain.User, partial map[string]interface{}, execErr error) error {
	detail := map[string]interface{}{"error": execErr.Error()}
	for k, v := range partial {
		detail[k] = v
	}

	update := domain.TerminalUpdate{
		Status:          domain.StatusFailed,
		ActorID:         approver.ID,
		ExecutionResult: detail,
	}
	if err := s.requests.SetTerminal(ctx, req.ID, update); err != nil {
		s.logger.Error("failed to record FAILED status",
			"request_id", req.ID, "error", err)
	}

	s.logAudit(ctx, req, domain.AuditFailed, approver.ID, info, detail)
	s.notify("execution failure", func() error {
		return s.notifier.NotifyExecutionFailure(ctx, info, execErr, approver.Name)
	})

	s.logger.Warn("query request failed",
		"request_id", req.ID, "approver", approver.Name, "error", execErr)

	return execErr
}

// Reject moves a PENDING request to REJECTED. Admins may reject any request;
// managers only requests in pods they manage.
func (s *ApprovalService) Reject(ctx context.Context, queryID string, actor domain.Actor, reason string) (*domain.QueryRequest, error) {
	req, err := s.requests.GetByID(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusPending {
		return nil, domain.ErrConflict("Query already processed")
	}

	if actor.Role != domain.RoleAdmin {
		pod, err := s.pods.FindByID(ctx, req.PodID)
		if err != nil {
			return nil, err
		}
		if actor.Role != domain.RoleManager || pod.ManagerID != actor.ID {
			return nil, domain.ErrAccessDenied("Not authorized to reject this request")
		}
	}

	rejecter, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	inst, err := s.instances.FindByID(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	info, err := s.buildInfo(ctx, req, inst)
	if err != nil {
		return nil, err
	}

	update := domain.TerminalUpdate{
		Status:  domain.StatusRejected,
		ActorID: actor.ID,
	}
	if reason != "" {
		update.RejectionReason = &reason
	}
	if err := s.requests.SetTerminal(ctx, req.ID, update); err != nil {
		return nil, err
	}

	s.logAudit(ctx, req, domain.AuditRejected, actor.ID, info, map[string]interface{}{
		"reason": reason,
	})
	s.notify("rejection", func() error {
		return s.notifier.NotifyRejection(ctx, info, reason, rejecter.Name)
	})

	s.logger.Info("query request rejected",
		"request_id", req.ID, "rejecter", rejecter.Name)

	return s.requests.GetByID(ctx, req.ID)
}

func validateSubmit(input SubmitInput) error {
	if strings.TrimSpace(input.DatabaseName) == "" {
		return domain.ErrValidation("Database name is required")
	}
	switch input.SubmissionType {
	case domain.SubmissionQuery:
		if strings.TrimSpace(input.QueryText) == "" {
			return domain.ErrValidation("Query text is required")
		}
	case domain.SubmissionScript:
		if strings.TrimSpace(input.ScriptContent) == "" {
			return domain.ErrValidation("Script content is required")
		}
	default:
		return domain.ErrValidation("Unsupported submission type: %s", input.SubmissionType)
	}
	return nil
}

// buildInfo assembles the denormalized view used for audit details and
// notifications.
func (s *ApprovalService) buildInfo(ctx context.Context, req *domain.QueryRequest, inst *domain.DbInstance) (domain.RequestInfo, error) {
	requester, err := s.users.FindByID(ctx, req.RequesterID)
	if err != nil {
		return domain.RequestInfo{}, err
	}
	pod, err := s.pods.FindByID(ctx, req.PodID)
	if err != nil {
		return domain.RequestInfo{}, err
	}
	return domain.RequestInfo{
		Request:       *req,
		RequesterName: requester.Name,
		PodName:       pod.Name,
		InstanceName:  inst.Name,
	}, nil
}

// logAudit appends a transition record with a denormalized snapshot of names
// so history survives later renames. Best-effort: audit is never read back
// for decisions, and a write failure must not abort the transition.
func (s *ApprovalService) logAudit(ctx context.Context, req *domain.QueryRequest, action domain.AuditAction, performedBy int64, info domain.RequestInfo, extra map[string]interface{}) {
	details := map[string]interface{}{
		"podName":        info.PodName,
		"instanceName":   info.InstanceName,
		"databaseName":   req.DatabaseName,
		"requesterName":  info.RequesterName,
		"submissionType": string(req.SubmissionType),
	}
	for k, v := range extra {
		details[k] = v
	}

	err := s.audit.Insert(ctx, &domain.AuditEntry{
		QueryRequestID: req.ID,
		Action:         action,
		PerformedBy:    performedBy,
		Details:        details,
	})
	if err != nil {
		s.logger.Error("audit write failed",
			"request_id", req.ID, "action", action, "error", err)
	}
}

// notify runs one notifier call best-effort: failures are logged to the side
// channel and never alter the main transition.
func (s *ApprovalService) notify(kind string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn("notification failed", "kind", kind, "error", err)
	}
}
