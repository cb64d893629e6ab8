package executor

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"

	"opsgate/internal/domain"
)

// connectFailureMessage is the generic infra-fault message. Native driver text
// for connectivity failures can leak internal hostnames, so it is not passed
// through.
const connectFailureMessage = "Failed to connect to the database server. Please verify the instance configuration."

const timeoutMessage = "Query execution timed out"

// Classify maps a native driver error onto the stable taxonomy: user-fault
// failures become QueryExecutionError (422-class, native message passed
// through), infrastructure failures become InternalError (500-class, generic
// message). Unrecognized signatures default to user-fault; timeouts are
// user-fault regardless of origin.
func Classify(instType domain.InstanceType, err error) error {
	if err == nil {
		return nil
	}

	// Timeouts first: always user-fault, whatever the driver wrapped them in.
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) {
		return domain.ErrQueryExecution("%s", timeoutMessage)
	}

	if isNetworkError(err) {
		return domain.ErrInternal("%s", connectFailureMessage)
	}

	switch instType {
	case domain.InstancePostgres:
		return classifyPostgres(err)
	case domain.InstanceMongoDB:
		return classifyMongo(err)
	}
	return domain.ErrQueryExecution("%s", err.Error())
}

func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// SQLSTATE class 08 is connection_exception.
		if strings.HasPrefix(pgErr.Code, "08") {
			return domain.ErrInternal("%s", connectFailureMessage)
		}
		// 57014 is query_canceled, raised when the deadline fires server-side.
		if pgErr.Code == "57014" {
			return domain.ErrQueryExecution("%s", timeoutMessage)
		}
		// Everything else (syntax 42xxx, constraint 23xxx, bad data
		// 22xxx, auth with bad stored credentials 28xxx) is the
		// submitter's problem.
		return domain.ErrQueryExecution("SQL Error: %s", pgErr.Message)
	}
	return domain.ErrQueryExecution("SQL Error: %s", err.Error())
}

func classifyMongo(err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return domain.ErrQueryExecution("MongoDB Error: %s", cmdErr.Message)
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		return domain.ErrQueryExecution("MongoDB Error: %s", writeErr.Error())
	}
	if isMongoSelectionError(err) {
		return domain.ErrInternal("%s", connectFailureMessage)
	}
	return domain.ErrQueryExecution("MongoDB Error: %s", err.Error())
}

// ClassifyMessage maps an error message that crossed a process boundary (the
// sandbox IPC protocol carries strings, not error values) onto the same
// taxonomy.
func ClassifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	for _, marker := range []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"server selection error",
		"connection reset by peer",
	} {
		if strings.Contains(lower, marker) {
			return domain.ErrInternal("%s", connectFailureMessage)
		}
	}
	return domain.ErrQueryExecution("%s", msg)
}

func isNetworkError(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable")
}

func isMongoSelectionError(err error) bool {
	return strings.Contains(err.Error(), "server selection error")
}
