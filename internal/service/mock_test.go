package service

import (
	"context"

	"opsgate/internal/domain"
)

// === Execution Dispatcher Mock ===

type mockDispatcher struct {
	executeFn func(ctx context.Context, inst *domain.DbInstance, req *domain.QueryRequest) (map[string]interface{}, error)
}

func (m *mockDispatcher) Execute(ctx context.Context, inst *domain.DbInstance, req *domain.QueryRequest) (map[string]interface{}, error) {
	if m.executeFn != nil {
		return m.executeFn(ctx, inst, req)
	}
	panic("unexpected call to mockDispatcher.Execute")
}

// === Notifier Recorder ===

// recordingNotifier captures every notification by kind. Notifications are
// best-effort, so the recorder never panics on unexpected calls; tests assert
// on what was captured. A non-nil err is returned from every call to exercise
// the log-and-continue path.
type recordingNotifier struct {
	submissions []domain.RequestInfo
	successes   []domain.RequestInfo
	failures    []domain.RequestInfo
	rejections  []domain.RequestInfo
	err         error
}

func (n *recordingNotifier) NotifyNewSubmission(_ context.Context, info domain.RequestInfo) error {
	n.submissions = append(n.submissions, info)
	return n.err
}

func (n *recordingNotifier) NotifyExecutionSuccess(_ context.Context, info domain.RequestInfo, _ map[string]interface{}, _ string) error {
	n.successes = append(n.successes, info)
	return n.err
}

func (n *recordingNotifier) NotifyExecutionFailure(_ context.Context, info domain.RequestInfo, _ error, _ string) error {
	n.failures = append(n.failures, info)
	return n.err
}

func (n *recordingNotifier) NotifyRejection(_ context.Context, info domain.RequestInfo, _, _ string) error {
	n.rejections = append(n.rejections, info)
	return n.err
}
