package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"opsgate/internal/domain"
	"opsgate/internal/scriptenv"
)

// PostgresExecutor runs one ad hoc query against a Postgres instance over a
// single-use connection pool. The pool is torn down whatever the outcome.
type PostgresExecutor struct {
	timeout time.Duration
	logger  *slog.Logger
}

func NewPostgresExecutor(timeout time.Duration, logger *slog.Logger) *PostgresExecutor {
	return &PostgresExecutor{timeout: timeout, logger: logger}
}

// Execute issues the literal query text with the configured deadline and
// returns {rows, rowCount}. Errors are routed through the classifier.
func (e *PostgresExecutor) Execute(ctx context.Context, inst *domain.DbInstance, query, databaseName string) (map[string]interface{}, error) {
	db, err := sql.Open("pgx", PostgresDSN(inst, databaseName))
	if err != nil {
		return nil, Classify(domain.InstancePostgres, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			e.logger.Warn("close postgres pool", "instance", inst.Name, "error", cerr)
		}
	}()
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, Classify(domain.InstancePostgres, err)
	}
	defer rows.Close()

	result, err := scriptenv.ScanRows(rows)
	if err != nil {
		return nil, Classify(domain.InstancePostgres, err)
	}

	e.logger.Debug("postgres query executed",
		"instance", inst.Name, "database", databaseName,
		"row_count", len(result), "duration_ms", time.Since(start).Milliseconds())

	items := make([]interface{}, 0, len(result))
	for _, row := range result {
		items = append(items, row)
	}
	return map[string]interface{}{
		"rows":     items,
		"rowCount": len(result),
	}, nil
}

// PostgresDSN builds a connection string from the decrypted instance
// descriptor. Credentials are URL-escaped.
func PostgresDSN(inst *domain.DbInstance, databaseName string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(inst.Username, inst.Password),
		Host:   fmt.Sprintf("%s:%d", inst.Host, inst.Port),
		Path:   "/" + databaseName,
	}
	q := url.Values{}
	q.Set("sslmode", "prefer")
	q.Set("connect_timeout", "10")
	u.RawQuery = q.Encode()
	return u.String()
}
