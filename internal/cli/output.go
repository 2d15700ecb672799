package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/roach88/cosimkit/internal/simerr"
	"github.com/roach88/cosimkit/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Simulation failure (cosim exited non-zero, results unreadable)
	ExitCommandError = 2 // Command error (bad arguments, missing files, cosim not found)
)

// Error codes reported in JSON output.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeValidation    = "E002" // Invalid argument or configuration
	ErrCodeDeployment    = "E003" // Missing or unwritable artifact
	ErrCodeEnvironment   = "E004" // cosim not found or not runnable
	ErrCodeExecution     = "E005" // cosim exited with a non-zero status
	ErrCodeResultParsing = "E006" // Result file missing or malformed
	ErrCodeNotFound      = "E007" // Run not found in history
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps an error to its JSON error code.
func ErrorCode(err error) string {
	if errors.Is(err, store.ErrNotFound) {
		return ErrCodeNotFound
	}
	switch simerr.KindOf(err) {
	case simerr.KindValidation:
		return ErrCodeValidation
	case simerr.KindDeployment:
		return ErrCodeDeployment
	case simerr.KindEnvironment:
		return ErrCodeEnvironment
	case simerr.KindExecution:
		return ErrCodeExecution
	case simerr.KindResultParsing:
		return ErrCodeResultParsing
	}
	return ErrCodeGeneric
}

// exitCodeFor returns ExitFailure for failures of the simulation itself and
// ExitCommandError for everything the user can fix on the command line.
func exitCodeFor(err error) int {
	switch simerr.KindOf(err) {
	case simerr.KindExecution, simerr.KindResultParsing:
		return ExitFailure
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// errorDetails is attached to JSON errors derived from simerr errors.
type errorDetails struct {
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
	Log      string `json:"log,omitempty"`
}

var (
	colorOK    = color.New(color.FgGreen)
	colorError = color.New(color.FgRed, color.Bold)
	colorDim   = color.New(color.FgHiBlack)
)

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	colorError.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// The cosim log of EXECUTION errors is always shown in text mode and
// included in the JSON details.
func (f *OutputFormatter) Fail(message string, err error) error {
	var details any
	var se *simerr.Error
	if errors.As(err, &se) {
		details = errorDetails{Kind: string(se.Kind), Path: se.Path, ExitCode: se.ExitCode, Log: se.Log}
	}

	if outErr := f.Error(ErrorCode(err), err.Error(), details); outErr != nil {
		return outErr
	}
	if f.Format != "json" && se != nil && se.Log != "" && !f.Verbose {
		colorDim.Fprintf(f.GetErrWriter(), "--- cosim log ---\n%s\n", se.Log)
	}
	return WrapExitError(exitCodeFor(err), message, err)
}

// Status prints a coloured status line in text mode.
func (f *OutputFormatter) Status(format string, args ...any) {
	if f.Format == "json" {
		return
	}
	colorOK.Fprintf(f.Writer, format+"\n", args...)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
