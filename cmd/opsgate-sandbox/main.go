// Command opsgate-sandbox executes one user script in an isolated process.
//
// The parent passes the full execution configuration as a single JSON blob in
// argv[1] and reads a single JSON result from stdout. Nothing sensitive is
// ever passed through the environment.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.starlark.net/starlark"

	"opsgate/internal/domain"
	"opsgate/internal/executor"
	"opsgate/internal/sandbox"
	"opsgate/internal/scriptenv"
)

func main() {
	res := run()
	if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}
	if !res.Success {
		os.Exit(1)
	}
}

func run() *sandbox.Result {
	if len(os.Args) < 2 {
		return failure("missing configuration argument")
	}

	var cfg sandbox.Config
	if err := json.Unmarshal([]byte(os.Args[1]), &cfg); err != nil {
		return failure("invalid configuration: %v", err)
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = sandbox.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logs := &scriptenv.Logs{}
	globals, cleanup, err := buildGlobals(ctx, cfg)
	if err != nil {
		return failure("%s", err)
	}
	defer cleanup()
	globals["log"] = scriptenv.LogBuiltin(logs)

	result, err := scriptenv.ExecScript(cfg.Script, globals, timeout)
	if err != nil {
		return &sandbox.Result{
			Success: false,
			Logs:    logs.Entries(),
			Error:   err.Error(),
		}
	}

	return &sandbox.Result{
		Success: true,
		Result:  result,
		Logs:    logs.Entries(),
	}
}

// buildGlobals connects to the target database and returns the script
// globals plus a cleanup that tears the connection down.
func buildGlobals(ctx context.Context, cfg sandbox.Config) (starlark.StringDict, func(), error) {
	switch cfg.DatabaseType {
	case domain.InstancePostgres:
		inst := &domain.DbInstance{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
		}
		db, err := sql.Open("pgx", executor.PostgresDSN(inst, cfg.DatabaseName))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanup := func() { _ = db.Close() }
		return scriptenv.NewSQLGlobals(ctx, db), cleanup, nil

	case domain.InstanceMongoDB:
		client, err := mongo.Connect(ctx, options.Client().
			ApplyURI(cfg.MongoURI).
			SetServerSelectionTimeout(10*time.Second))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			disconnect(client)
			return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		database := executor.NewDriverDatabase(client.Database(cfg.DatabaseName))
		cleanup := func() { disconnect(client) }
		return scriptenv.NewMongoGlobals(ctx, database), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
}

func disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = client.Disconnect(ctx)
}

func failure(format string, args ...interface{}) *sandbox.Result {
	return &sandbox.Result{Success: false, Error: fmt.Sprintf(format, args...)}
}
