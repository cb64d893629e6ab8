package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "opsgate/internal/db"
	"opsgate/internal/db/crypto"
	"opsgate/internal/db/repository"
	"opsgate/internal/domain"
)

const testEncryptionKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type approvalFixture struct {
	svc        *ApprovalService
	dispatcher *mockDispatcher
	notifier   *recordingNotifier
	requests   *repository.RequestRepo
	audit      *repository.AuditRepo

	requester    *domain.User
	manager      *domain.User
	otherManager *domain.User
	admin        *domain.User
	pod          *domain.Pod
	instance     *domain.DbInstance
}

func setupApproval(t *testing.T) *approvalFixture {
	t.Helper()
	ctx := context.Background()
	db := internaldb.OpenTestSQLite(t)

	enc, err := crypto.NewEncryptor(testEncryptionKey)
	require.NoError(t, err)

	requestRepo := repository.NewRequestRepo(db)
	instanceRepo := repository.NewInstanceRepo(db, enc)
	userRepo := repository.NewUserRepo(db)
	podRepo := repository.NewPodRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	requester, err := userRepo.Create(ctx, &domain.User{Name: "alice", Role: domain.RoleUser})
	require.NoError(t, err)
	manager, err := userRepo.Create(ctx, &domain.User{Name: "bob", Role: domain.RoleManager})
	require.NoError(t, err)
	otherManager, err := userRepo.Create(ctx, &domain.User{Name: "carol", Role: domain.RoleManager})
	require.NoError(t, err)
	admin, err := userRepo.Create(ctx, &domain.User{Name: "dave", Role: domain.RoleAdmin})
	require.NoError(t, err)

	pod, err := podRepo.Create(ctx, &domain.Pod{Name: "payments", ManagerID: manager.ID})
	require.NoError(t, err)

	instance, err := instanceRepo.Create(ctx, &domain.DbInstance{
		Name: "orders-db", Type: domain.InstancePostgres,
		Host: "db.internal", Port: 5432, Username: "app", Password: "secret",
	})
	require.NoError(t, err)

	dispatcher := &mockDispatcher{}
	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewApprovalService(
		requestRepo, instanceRepo, userRepo, podRepo,
		auditRepo, notifier, dispatcher, logger,
	)

	return &approvalFixture{
		svc:        svc,
		dispatcher: dispatcher,
		notifier:   notifier,
		requests:   requestRepo,
		audit:      auditRepo,

		requester:    requester,
		manager:      manager,
		otherManager: otherManager,
		admin:        admin,
		pod:          pod,
		instance:     instance,
	}
}

func (f *approvalFixture) submitQuery(t *testing.T, query string) *domain.QueryRequest {
	t.Helper()
	req, err := f.svc.Submit(context.Background(), SubmitInput{
		RequesterID:    f.requester.ID,
		PodID:          f.pod.ID,
		InstanceID:     f.instance.ID,
		DatabaseName:   "orders",
		SubmissionType: domain.SubmissionQuery,
		QueryText:      query,
	})
	require.NoError(t, err)
	return req
}

func (f *approvalFixture) auditActions(t *testing.T, requestID string) []domain.AuditAction {
	t.Helper()
	entries, _, err := f.audit.List(context.Background(), domain.AuditFilter{QueryRequestID: &requestID})
	require.NoError(t, err)
	// The repository lists newest first; reverse into submission order.
	actions := make([]domain.AuditAction, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		actions = append(actions, entries[i].Action)
	}
	return actions
}

func TestApprovalService_Submit_CreatesPending(t *testing.T) {
	f := setupApproval(t)

	req := f.submitQuery(t, "SELECT count(*) FROM orders")
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.NotEmpty(t, req.ID)

	stored, err := f.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, f.requester.ID, stored.RequesterID)

	assert.Equal(t, []domain.AuditAction{domain.AuditSubmitted}, f.auditActions(t, req.ID))
	assert.Len(t, f.notifier.submissions, 1)
	assert.Equal(t, "alice", f.notifier.submissions[0].RequesterName)
}

func TestApprovalService_Submit_AuditSnapshotsNames(t *testing.T) {
	f := setupApproval(t)

	req := f.submitQuery(t, "SELECT 1")
	entries, _, err := f.audit.List(context.Background(), domain.AuditFilter{QueryRequestID: &req.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "payments", entries[0].Details["podName"])
	assert.Equal(t, "orders-db", entries[0].Details["instanceName"])
	assert.Equal(t, "orders", entries[0].Details["databaseName"])
	assert.Equal(t, "alice", entries[0].Details["requesterName"])
}

func TestApprovalService_Submit_Validation(t *testing.T) {
	f := setupApproval(t)

	tests := []struct {
		name  string
		input SubmitInput
	}{
		{"missing database name", SubmitInput{
			RequesterID: f.requester.ID, PodID: f.pod.ID, InstanceID: f.instance.ID,
			SubmissionType: domain.SubmissionQuery, QueryText: "SELECT 1",
		}},
		{"blank query text", SubmitInput{
			RequesterID: f.requester.ID, PodID: f.pod.ID, InstanceID: f.instance.ID,
			DatabaseName: "orders", SubmissionType: domain.SubmissionQuery, QueryText: "   ",
		}},
		{"blank script content", SubmitInput{
			RequesterID: f.requester.ID, PodID: f.pod.ID, InstanceID: f.instance.ID,
			DatabaseName: "orders", SubmissionType: domain.SubmissionScript, ScriptContent: "\n",
		}},
		{"unsupported submission type", SubmitInput{
			RequesterID: f.requester.ID, PodID: f.pod.ID, InstanceID: f.instance.ID,
			DatabaseName: "orders", SubmissionType: "BATCH", QueryText: "SELECT 1",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tt.input)
			require.Error(t, err)
			var validationErr *domain.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestApprovalService_Submit_UnknownRequester(t *testing.T) {
	f := setupApproval(t)

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		RequesterID: 9999, PodID: f.pod.ID, InstanceID: f.instance.ID,
		DatabaseName: "orders", SubmissionType: domain.SubmissionQuery, QueryText: "SELECT 1",
	})
	require.Error(t, err)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestApprovalService_Approve_Success(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "SELECT count(*) FROM orders")

	f.dispatcher.executeFn = func(_ context.Context, inst *domain.DbInstance, r *domain.QueryRequest) (map[string]interface{}, error) {
		assert.Equal(t, f.instance.ID, inst.ID)
		assert.Equal(t, "secret", inst.Password)
		assert.Equal(t, req.ID, r.ID)
		return map[string]interface{}{"rowCount": float64(3)}, nil
	}

	result, err := f.svc.Approve(context.Background(), req.ID, f.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, result.Status)
	assert.Equal(t, float64(3), result.Result["rowCount"])

	stored, err := f.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, stored.Status)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, f.manager.ID, *stored.ApprovedBy)
	assert.Equal(t, float64(3), stored.ExecutionResult["rowCount"])

	assert.Equal(t, []domain.AuditAction{domain.AuditSubmitted, domain.AuditExecuted}, f.auditActions(t, req.ID))
	assert.Len(t, f.notifier.successes, 1)
}

func TestApprovalService_Approve_AlreadyProcessed(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "SELECT 1")

	f.dispatcher.executeFn = func(context.Context, *domain.DbInstance, *domain.QueryRequest) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	}
	_, err := f.svc.Approve(context.Background(), req.ID, f.manager.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), req.ID, f.manager.ID)
	require.Error(t, err)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Query already processed", conflict.Message)
}

func TestApprovalService_Approve_ExecutionFailure(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "SELEC 1")

	execErr := domain.ErrQueryExecution("SQL Error: syntax error at or near \"SELEC\"")
	f.dispatcher.executeFn = func(context.Context, *domain.DbInstance, *domain.QueryRequest) (map[string]interface{}, error) {
		return nil, execErr
	}

	_, err := f.svc.Approve(context.Background(), req.ID, f.manager.ID)
	require.Error(t, err)
	var queryErr *domain.QueryExecutionError
	require.ErrorAs(t, err, &queryErr)

	stored, err := f.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, execErr.Error(), stored.ExecutionResult["error"])

	assert.Equal(t, []domain.AuditAction{domain.AuditSubmitted, domain.AuditFailed}, f.auditActions(t, req.ID))
	assert.Len(t, f.notifier.failures, 1)
}

func TestApprovalService_Approve_ScriptFailureKeepsLogs(t *testing.T) {
	f := setupApproval(t)
	req, err := f.svc.Submit(context.Background(), SubmitInput{
		RequesterID:    f.requester.ID,
		PodID:          f.pod.ID,
		InstanceID:     f.instance.ID,
		DatabaseName:   "orders",
		SubmissionType: domain.SubmissionScript,
		ScriptContent:  `log("pruning")` + "\nfoo()",
	})
	require.NoError(t, err)

	logs := []interface{}{"pruning"}
	f.dispatcher.executeFn = func(context.Context, *domain.DbInstance, *domain.QueryRequest) (map[string]interface{}, error) {
		return map[string]interface{}{"logs": logs},
			domain.ErrQueryExecution("NameError: name 'foo' is not defined")
	}

	_, err = f.svc.Approve(context.Background(), req.ID, f.manager.ID)
	require.Error(t, err)

	stored, err := f.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, "NameError: name 'foo' is not defined", stored.ExecutionResult["error"])
	assert.Equal(t, logs, stored.ExecutionResult["logs"])

	failed := domain.AuditFailed
	entries, _, err := f.audit.List(context.Background(), domain.AuditFilter{
		QueryRequestID: &req.ID, Action: &failed,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, logs, entries[0].Details["logs"])
}

func TestApprovalService_Approve_PreconditionLeavesStateUntouched(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "SELECT 1")

	f.dispatcher.executeFn = func(context.Context, *domain.DbInstance, *domain.QueryRequest) (map[string]interface{}, error) {
		return nil, domain.ErrValidation("Missing connection configuration for Postgres instance orders-db")
	}

	_, err := f.svc.Approve(context.Background(), req.ID, f.manager.ID)
	require.Error(t, err)
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)

	// The request is still PENDING and can be approved again once the
	// instance configuration is fixed.
	stored, err := f.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, []domain.AuditAction{domain.AuditSubmitted}, f.auditActions(t, req.ID))
	assert.Empty(t, f.notifier.failures)
}

func TestApprovalService_Approve_UnknownRequest(t *testing.T) {
	f := setupApproval(t)

	_, err := f.svc.Approve(context.Background(), "no-such-id", f.manager.ID)
	require.Error(t, err)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestApprovalService_Reject_ByPodManager(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "DELETE FROM orders")

	rejected, err := f.svc.Reject(context.Background(),
		req.ID, domain.Actor{ID: f.manager.ID, Role: domain.RoleManager}, "too destructive")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "too destructive", *rejected.RejectionReason)

	assert.Equal(t, []domain.AuditAction{domain.AuditSubmitted, domain.AuditRejected}, f.auditActions(t, req.ID))
	assert.Len(t, f.notifier.rejections, 1)
}

func TestApprovalService_Reject_ByAdmin(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "DELETE FROM orders")

	rejected, err := f.svc.Reject(context.Background(),
		req.ID, domain.Actor{ID: f.admin.ID, Role: domain.RoleAdmin}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Nil(t, rejected.RejectionReason)
}

func TestApprovalService_Reject_ByOtherManager(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "DELETE FROM orders")

	_, err := f.svc.Reject(context.Background(),
		req.ID, domain.Actor{ID: f.otherManager.ID, Role: domain.RoleManager}, "not mine")
	require.Error(t, err)
	var accessDenied *domain.AccessDeniedError
	require.ErrorAs(t, err, &accessDenied)
	assert.Equal(t, "Not authorized to reject this request", accessDenied.Message)

	stored, err := f.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestApprovalService_Reject_ByRegularUser(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "DELETE FROM orders")

	_, err := f.svc.Reject(context.Background(),
		req.ID, domain.Actor{ID: f.requester.ID, Role: domain.RoleUser}, "")
	require.Error(t, err)
	var accessDenied *domain.AccessDeniedError
	assert.ErrorAs(t, err, &accessDenied)
}

func TestApprovalService_Reject_AlreadyProcessed(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "SELECT 1")

	_, err := f.svc.Reject(context.Background(),
		req.ID, domain.Actor{ID: f.manager.ID, Role: domain.RoleManager}, "first")
	require.NoError(t, err)

	_, err = f.svc.Reject(context.Background(),
		req.ID, domain.Actor{ID: f.manager.ID, Role: domain.RoleManager}, "second")
	require.Error(t, err)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Query already processed", conflict.Message)
}

func TestApprovalService_NotifierFailureDoesNotAbort(t *testing.T) {
	f := setupApproval(t)
	f.notifier.err = assert.AnError

	req := f.submitQuery(t, "SELECT 1")
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Len(t, f.notifier.submissions, 1)
}
