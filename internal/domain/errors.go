// Package domain defines core types, interfaces, and errors for the approval service.
package domain

import "fmt"

// NotFoundError indicates a referenced entity was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates insufficient permissions.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ValidationError indicates invalid or missing input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a request is already in a terminal state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// QueryExecutionError indicates an execution failure caused by the caller's
// input: bad query or script shape, a constraint violation, or stored database
// credentials the target rejects. Surfaces as a 422-class error carrying the
// native driver message.
type QueryExecutionError struct {
	Message string
}

func (e *QueryExecutionError) Error() string { return e.Message }

// InternalError indicates an infrastructure-fault execution failure:
// connectivity, DNS, TLS, unreachable host. Surfaces as a 500-class error with
// a generic message so infrastructure details do not leak to the requester.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrQueryExecution creates a QueryExecutionError with a formatted message.
func ErrQueryExecution(format string, args ...interface{}) *QueryExecutionError {
	return &QueryExecutionError{Message: fmt.Sprintf(format, args...)}
}

// ErrInternal creates an InternalError with a formatted message.
func ErrInternal(format string, args ...interface{}) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...)}
}
