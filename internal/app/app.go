// Package app provides application-level wiring and dependency injection for
// the approval service.
package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"opsgate/internal/config"
	"opsgate/internal/db/crypto"
	"opsgate/internal/db/repository"
	"opsgate/internal/domain"
	"opsgate/internal/executor"
	"opsgate/internal/notify"
	"opsgate/internal/sandbox"
	"opsgate/internal/service"
)

// Deps holds the external dependencies that main() must provide: the store
// handle, config, and logger.
type Deps struct {
	Cfg    *config.Config
	Store  *sql.DB
	Logger *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Approval  *service.ApprovalService
	Audit     *service.AuditService
	Instances *repository.InstanceRepo
	Users     *repository.UserRepo
	Pods      *repository.PodRepo
}

// New wires repositories, executors, the sandbox runner, the notifier, and
// the approval service from the provided deps.
func New(deps Deps) (*App, error) {
	cfg := deps.Cfg

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credential encryptor: %w", err)
	}

	// === Repositories ===
	requestRepo := repository.NewRequestRepo(deps.Store)
	instanceRepo := repository.NewInstanceRepo(deps.Store, encryptor)
	userRepo := repository.NewUserRepo(deps.Store)
	podRepo := repository.NewPodRepo(deps.Store)
	auditRepo := repository.NewAuditRepo(deps.Store)

	// === Execution ===
	postgresExec := executor.NewPostgresExecutor(cfg.ExecTimeout, deps.Logger.With("component", "postgres-executor"))
	mongoExec := executor.NewMongoExecutor(cfg.ExecTimeout, deps.Logger.With("component", "mongo-executor"))
	runner := sandbox.NewRunner(cfg.SandboxBin, deps.Logger.With("component", "sandbox"))
	dispatcher := executor.NewDispatcher(postgresExec, mongoExec, runner, cfg.SandboxTimeout, deps.Logger.With("component", "dispatcher"))

	// === Notifications ===
	var notifier domain.Notifier = notify.NopNotifier{}
	if cfg.SlackWebhookURL != "" {
		notifier = notify.NewSlackNotifier(cfg.SlackWebhookURL)
	}

	approvalSvc := service.NewApprovalService(
		requestRepo, instanceRepo, userRepo, podRepo,
		auditRepo, notifier, dispatcher,
		deps.Logger.With("component", "approval"),
	)

	return &App{
		Approval:  approvalSvc,
		Audit:     service.NewAuditService(auditRepo),
		Instances: instanceRepo,
		Users:     userRepo,
		Pods:      podRepo,
	}, nil
}
