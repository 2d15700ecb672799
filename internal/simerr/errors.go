// Package simerr defines the error kinds surfaced by cosimkit.
//
// Every failure that reaches a caller is a *Error carrying one of five kinds:
//   - DEPLOYMENT: a model artifact is missing or the working directory cannot be written
//   - ENVIRONMENT: the cosim executable cannot be found or started
//   - EXECUTION: cosim exited with a non-zero status (the captured log is attached)
//   - RESULT_PARSING: an expected result file is missing or malformed
//   - VALIDATION: invalid duration, log level, scenario or logging configuration
//
// None of these are retried internally.
package simerr

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error.
type Kind string

const (
	KindDeployment    Kind = "DEPLOYMENT"
	KindEnvironment   Kind = "ENVIRONMENT"
	KindExecution     Kind = "EXECUTION"
	KindResultParsing Kind = "RESULT_PARSING"
	KindValidation    Kind = "VALIDATION"
)

// Error is the structured error returned by all cosimkit packages.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Path is the file or directory involved, if any.
	Path string

	// Log is the captured output of the external process, if any.
	Log string

	// ExitCode is the process exit status for EXECUTION errors.
	ExitCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a VALIDATION error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Deployment creates a DEPLOYMENT error for path.
func Deployment(path, message string, err error) *Error {
	return &Error{Kind: KindDeployment, Message: message, Path: path, Err: err}
}

// Environment creates an ENVIRONMENT error for the executable at path.
func Environment(path, message string, err error) *Error {
	return &Error{Kind: KindEnvironment, Message: message, Path: path, Err: err}
}

// Execution creates an EXECUTION error carrying the captured process log.
func Execution(exitCode int, log string, err error) *Error {
	return &Error{
		Kind:     KindExecution,
		Message:  fmt.Sprintf("cosim exited with status %d", exitCode),
		Log:      log,
		ExitCode: exitCode,
		Err:      err,
	}
}

// ResultParsing creates a RESULT_PARSING error for path.
func ResultParsing(path, message string, err error) *Error {
	return &Error{Kind: KindResultParsing, Message: message, Path: path, Err: err}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// LogOf returns the process log attached to err, if any.
func LogOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Log
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsDeployment(err error) bool { return KindOf(err) == KindDeployment }
func IsEnvironment(err error) bool { return KindOf(err) == KindEnvironment }
func IsExecution(err error) bool { return KindOf(err) == KindExecution }
func IsResultParsing(err error) bool { return KindOf(err) == KindResultParsing }
