package executor

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsgate/internal/domain"
	"opsgate/internal/scriptenv"
)

// MongoExecutor evaluates one query expression against a Mongo instance. The
// query text is code, not data: it is evaluated as a Starlark expression
// against a `db` accessor whose attributes are lazily-materialized collection
// wrappers, preserving arbitrary expression shapes (control flow included)
// under a step limit and the configured deadline.
type MongoExecutor struct {
	timeout time.Duration
	logger  *slog.Logger
}

func NewMongoExecutor(timeout time.Duration, logger *slog.Logger) *MongoExecutor {
	return &MongoExecutor{timeout: timeout, logger: logger}
}

// Execute connects with a throwaway client, evaluates the expression with the
// deadline race, and always disconnects. Errors are routed through the
// classifier.
func (e *MongoExecutor) Execute(ctx context.Context, inst *domain.DbInstance, expression, databaseName string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(inst.MongoURI).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, Classify(domain.InstanceMongoDB, err)
	}
	defer func() {
		// Disconnect gets its own context: the deadline may already be spent.
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		if cerr := client.Disconnect(disconnectCtx); cerr != nil {
			e.logger.Warn("disconnect mongo client", "instance", inst.Name, "error", cerr)
		}
	}()

	globals := scriptenv.NewMongoGlobals(ctx, NewDriverDatabase(client.Database(databaseName)))

	start := time.Now()
	value, err := scriptenv.EvalExpression(expression, globals, e.timeout)
	if err != nil {
		return nil, Classify(domain.InstanceMongoDB, err)
	}

	result, err := scriptenv.FromStarlark(value)
	if err != nil {
		return nil, Classify(domain.InstanceMongoDB, err)
	}

	e.logger.Debug("mongo expression evaluated",
		"instance", inst.Name, "database", databaseName,
		"duration_ms", time.Since(start).Milliseconds())

	return map[string]interface{}{"result": result}, nil
}
