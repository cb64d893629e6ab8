package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsgate/internal/domain"
	"opsgate/internal/sandbox"
)

type mockSandboxRunner struct {
	runFn func(ctx context.Context, cfg sandbox.Config) (*sandbox.Result, error)
}

func (m *mockSandboxRunner) Run(ctx context.Context, cfg sandbox.Config) (*sandbox.Result, error) {
	if m.runFn != nil {
		return m.runFn(ctx, cfg)
	}
	panic("unexpected call to mockSandboxRunner.Run")
}

func newTestDispatcher(runner SandboxRunner) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(
		NewPostgresExecutor(time.Second, logger),
		NewMongoExecutor(time.Second, logger),
		runner, 30*time.Second, logger,
	)
}

func pgInstance() *domain.DbInstance {
	return &domain.DbInstance{
		Name: "orders-db", Type: domain.InstancePostgres,
		Host: "db.internal", Port: 5432, Username: "app", Password: "secret",
	}
}

func mongoInstance() *domain.DbInstance {
	return &domain.DbInstance{
		Name: "events-db", Type: domain.InstanceMongoDB,
		MongoURI: "mongodb://db.internal:27017",
	}
}

func TestDispatcher_Preconditions(t *testing.T) {
	d := newTestDispatcher(&mockSandboxRunner{})

	tests := []struct {
		name string
		inst *domain.DbInstance
		req  *domain.QueryRequest
	}{
		{
			name: "postgres missing host",
			inst: &domain.DbInstance{Name: "x", Type: domain.InstancePostgres, Port: 5432, Username: "u", Password: "p"},
			req:  &domain.QueryRequest{SubmissionType: domain.SubmissionQuery, QueryText: "SELECT 1"},
		},
		{
			name: "postgres missing password",
			inst: &domain.DbInstance{Name: "x", Type: domain.InstancePostgres, Host: "h", Port: 5432, Username: "u"},
			req:  &domain.QueryRequest{SubmissionType: domain.SubmissionQuery, QueryText: "SELECT 1"},
		},
		{
			name: "mongodb missing uri",
			inst: &domain.DbInstance{Name: "x", Type: domain.InstanceMongoDB},
			req:  &domain.QueryRequest{SubmissionType: domain.SubmissionQuery, QueryText: "db.users.find()"},
		},
		{
			name: "unsupported instance type",
			inst: &domain.DbInstance{Name: "x", Type: "ORACLE"},
			req:  &domain.QueryRequest{SubmissionType: domain.SubmissionQuery, QueryText: "SELECT 1"},
		},
		{
			name: "blank query text",
			inst: pgInstance(),
			req:  &domain.QueryRequest{SubmissionType: domain.SubmissionQuery, QueryText: "  "},
		},
		{
			name: "blank script content",
			inst: pgInstance(),
			req:  &domain.QueryRequest{SubmissionType: domain.SubmissionScript, ScriptContent: ""},
		},
		{
			name: "unsupported submission type",
			inst: pgInstance(),
			req:  &domain.QueryRequest{SubmissionType: "BATCH"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Execute(context.Background(), tt.inst, tt.req)
			require.Error(t, err)
			var validationErr *domain.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestDispatcher_Script_Success(t *testing.T) {
	var gotCfg sandbox.Config
	runner := &mockSandboxRunner{
		runFn: func(_ context.Context, cfg sandbox.Config) (*sandbox.Result, error) {
			gotCfg = cfg
			return &sandbox.Result{
				Success: true,
				Result:  map[string]interface{}{"deleted": float64(12)},
				Logs:    []interface{}{"starting", "done"},
			}, nil
		},
	}
	d := newTestDispatcher(runner)

	req := &domain.QueryRequest{
		ID: "req-1", DatabaseName: "orders",
		SubmissionType: domain.SubmissionScript,
		ScriptContent:  `result = {"deleted": 12}`,
	}
	out, err := d.Execute(context.Background(), pgInstance(), req)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"deleted": float64(12)}, out["result"])
	assert.Equal(t, []interface{}{"starting", "done"}, out["logs"])

	// The child receives decrypted credentials and the configured timeout.
	assert.Equal(t, domain.InstancePostgres, gotCfg.DatabaseType)
	assert.Equal(t, "orders", gotCfg.DatabaseName)
	assert.Equal(t, "secret", gotCfg.Password)
	assert.Equal(t, int64(30000), gotCfg.TimeoutMs)
}

func TestDispatcher_Script_Failure(t *testing.T) {
	runner := &mockSandboxRunner{
		runFn: func(context.Context, sandbox.Config) (*sandbox.Result, error) {
			return &sandbox.Result{
				Success: false,
				Error:   "NameError: name 'foo' is not defined",
				Logs:    []interface{}{"loaded 3 batches", "about to call foo"},
			}, nil
		},
	}
	d := newTestDispatcher(runner)

	req := &domain.QueryRequest{
		DatabaseName: "events", SubmissionType: domain.SubmissionScript, ScriptContent: "foo()",
	}
	out, err := d.Execute(context.Background(), mongoInstance(), req)
	require.Error(t, err)
	var queryErr *domain.QueryExecutionError
	require.ErrorAs(t, err, &queryErr)
	assert.Equal(t, "NameError: name 'foo' is not defined", queryErr.Message)

	// The logs collected before the failure come back as a partial result.
	assert.Equal(t, map[string]interface{}{
		"logs": []interface{}{"loaded 3 batches", "about to call foo"},
	}, out)
}

func TestDispatcher_Script_FailureNoLogs(t *testing.T) {
	runner := &mockSandboxRunner{
		runFn: func(context.Context, sandbox.Config) (*sandbox.Result, error) {
			return &sandbox.Result{Success: false, Error: "boom"}, nil
		},
	}
	d := newTestDispatcher(runner)

	req := &domain.QueryRequest{
		DatabaseName: "events", SubmissionType: domain.SubmissionScript, ScriptContent: "foo()",
	}
	out, err := d.Execute(context.Background(), mongoInstance(), req)
	require.Error(t, err)
	assert.Nil(t, out)
}

func TestDispatcher_Script_InfraFailure(t *testing.T) {
	runner := &mockSandboxRunner{
		runFn: func(context.Context, sandbox.Config) (*sandbox.Result, error) {
			return &sandbox.Result{Success: false, Error: "dial tcp 10.0.0.5:5432: connection refused"}, nil
		},
	}
	d := newTestDispatcher(runner)

	req := &domain.QueryRequest{
		DatabaseName: "orders", SubmissionType: domain.SubmissionScript, ScriptContent: "result = 1",
	}
	_, err := d.Execute(context.Background(), pgInstance(), req)
	require.Error(t, err)
	var internalErr *domain.InternalError
	assert.ErrorAs(t, err, &internalErr)
}

func TestDispatcher_Script_SpawnFailure(t *testing.T) {
	runner := &mockSandboxRunner{
		runFn: func(context.Context, sandbox.Config) (*sandbox.Result, error) {
			return nil, errors.New("fork/exec: no such file or directory")
		},
	}
	d := newTestDispatcher(runner)

	req := &domain.QueryRequest{
		DatabaseName: "orders", SubmissionType: domain.SubmissionScript, ScriptContent: "result = 1",
	}
	_, err := d.Execute(context.Background(), pgInstance(), req)
	require.Error(t, err)
	var internalErr *domain.InternalError
	assert.ErrorAs(t, err, &internalErr)
}
