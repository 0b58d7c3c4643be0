// Package errors provides structured error handling for topomap operations.
// It defines the error codes used across the discovery engine and a single
// ScanError type carrying code, target and cause.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a failure.
type ErrorCode string

const (
	CodeUnknown    ErrorCode = "UNKNOWN"
	CodeValidation ErrorCode = "VALIDATION"
	CodeTimeout    ErrorCode = "TIMEOUT"
	CodePermission ErrorCode = "PERMISSION"
	CodeNotFound   ErrorCode = "NOT_FOUND"

	// Per-host probe failed (unreachable, timeout, tool failure). Non-fatal.
	CodeProbeFailure ErrorCode = "PROBE_FAILURE"
	// Raw scan output could not be understood.
	CodeParseFailure ErrorCode = "PARSE_FAILURE"
	// The scanning tool itself reported an error.
	CodeToolReported ErrorCode = "TOOL_REPORTED"
	// Default gateway could not be resolved or is not among the candidates.
	CodeClassificationAmbiguity ErrorCode = "CLASSIFICATION_AMBIGUITY"
	// Uncaught error inside a scan cycle.
	CodeOrchestratorFault ErrorCode = "ORCHESTRATOR_FAULT"

	CodePersistence ErrorCode = "PERSISTENCE"
	CodeSummary     ErrorCode = "SUMMARY"
)

// ScanError represents an error that occurred during discovery operations.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Op      string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Code, e.Op, e.Message)
	}
	if e.Target != "" {
		msg += fmt.Sprintf(" (target: %s)", e.Target)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithTarget sets the target the error refers to.
func (e *ScanError) WithTarget(target string) *ScanError {
	e.Target = target
	return e
}

// WithOp sets the operation that failed.
func (e *ScanError) WithOp(op string) *ScanError {
	e.Op = op
	return e
}

// New creates a new error with the specified code and message.
func New(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// Newf creates a new error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *ScanError {
	return &ScanError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// CodeOf returns the code of the outermost ScanError in the chain, or
// CodeUnknown if there is none.
func CodeOf(err error) ErrorCode {
	var se *ScanError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// IsCode reports whether any ScanError in the chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *ScanError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}

// Is, As and Join re-export the standard library helpers so callers only need
// to import one errors package.
var (
	Is   = stderrors.Is
	As   = stderrors.As
	Join = stderrors.Join
)
