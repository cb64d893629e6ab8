package executor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"opsgate/internal/domain"
	"opsgate/internal/sandbox"
)

// SandboxRunner is the process-isolation capability the dispatcher hands
// SCRIPT submissions to. Implemented by sandbox.Runner.
type SandboxRunner interface {
	Run(ctx context.Context, cfg sandbox.Config) (*sandbox.Result, error)
}

// Dispatcher selects one of the four executor paths for a
// {database type, submission type} pair and validates preconditions before
// any connection attempt.
type Dispatcher struct {
	postgres       *PostgresExecutor
	mongo          *MongoExecutor
	sandbox        SandboxRunner
	sandboxTimeout time.Duration
	logger         *slog.Logger
}

func NewDispatcher(postgres *PostgresExecutor, mongo *MongoExecutor, sb SandboxRunner, sandboxTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		postgres:       postgres,
		mongo:          mongo,
		sandbox:        sb,
		sandboxTimeout: sandboxTimeout,
		logger:         logger,
	}
}

var _ domain.ExecutionDispatcher = (*Dispatcher)(nil)

// Execute routes the request. Precondition failures return ValidationError
// with no side effect; execution failures come back already classified. A
// failed script may return a partial result carrying its collected logs.
func (d *Dispatcher) Execute(ctx context.Context, inst *domain.DbInstance, req *domain.QueryRequest) (map[string]interface{}, error) {
	if err := validatePreconditions(inst, req); err != nil {
		return nil, err
	}

	d.logger.Info("dispatching execution",
		"request_id", req.ID, "instance", inst.Name,
		"instance_type", inst.Type, "submission_type", req.SubmissionType)

	switch req.SubmissionType {
	case domain.SubmissionQuery:
		if inst.Type == domain.InstancePostgres {
			return d.postgres.Execute(ctx, inst, req.QueryText, req.DatabaseName)
		}
		return d.mongo.Execute(ctx, inst, req.QueryText, req.DatabaseName)

	case domain.SubmissionScript:
		return d.runScript(ctx, inst, req)
	}

	// Unreachable: validatePreconditions rejects unknown submission types.
	return nil, domain.ErrValidation("Unsupported submission type: %s", req.SubmissionType)
}

func (d *Dispatcher) runScript(ctx context.Context, inst *domain.DbInstance, req *domain.QueryRequest) (map[string]interface{}, error) {
	cfg := sandbox.Config{
		DatabaseType: inst.Type,
		DatabaseName: req.DatabaseName,
		Script:       req.ScriptContent,
		TimeoutMs:    d.sandboxTimeout.Milliseconds(),
		Host:         inst.Host,
		Port:         inst.Port,
		Username:     inst.Username,
		Password:     inst.Password,
		MongoURI:     inst.MongoURI,
	}

	res, err := d.sandbox.Run(ctx, cfg)
	if err != nil {
		return nil, domain.ErrInternal("sandbox execution failed: %v", err)
	}

	if !res.Success {
		// The collected log() output is often the only debugging signal a
		// failed script leaves behind; hand it back alongside the error.
		var partial map[string]interface{}
		if len(res.Logs) > 0 {
			partial = map[string]interface{}{"logs": res.Logs}
		}
		return partial, ClassifyMessage(res.Error)
	}

	return map[string]interface{}{
		"result": res.Result,
		"logs":   res.Logs,
	}, nil
}

func validatePreconditions(inst *domain.DbInstance, req *domain.QueryRequest) error {
	switch inst.Type {
	case domain.InstancePostgres:
		if inst.Host == "" || inst.Port == 0 || inst.Username == "" || inst.Password == "" {
			return domain.ErrValidation("Missing connection configuration for Postgres instance %s", inst.Name)
		}
	case domain.InstanceMongoDB:
		if inst.MongoURI == "" {
			return domain.ErrValidation("Missing connection URI for MongoDB instance %s", inst.Name)
		}
	default:
		return domain.ErrValidation("Unsupported database type: %s", inst.Type)
	}

	switch req.SubmissionType {
	case domain.SubmissionQuery:
		if strings.TrimSpace(req.QueryText) == "" {
			return domain.ErrValidation("Query text is required")
		}
	case domain.SubmissionScript:
		if strings.TrimSpace(req.ScriptContent) == "" {
			return domain.ErrValidation("Script content is required")
		}
	default:
		return domain.ErrValidation("Unsupported submission type: %s", req.SubmissionType)
	}

	return nil
}
