package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/roach88/ledgerdb/internal/config"
	"github.com/roach88/ledgerdb/internal/criteria"
	"github.com/roach88/ledgerdb/internal/querysql"
	"github.com/roach88/ledgerdb/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (corruption refused, scenario failed, etc.)
	ExitCommandError = 2 // Command error (bad flags, invalid config, database unreachable, etc.)
)

// Error codes reported in CLI responses. Typed store and query errors
// report their own codes instead.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeConfig          = "E002" // Configuration invalid
	ErrCodeConnect         = "E003" // Database unreachable
	ErrCodeNotFound        = "E004" // Entity not found
	ErrCodeInvalidArgument = "E005" // Bad argument or flag value
	ErrCodeStorage         = "E006" // Storage failure
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

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool

	// NewTraceID generates the trace_id of JSON responses.
	// If nil, defaults to UUIDv7.
	NewTraceID func() string
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string      `json:"status"`             // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`     // success payload
	Error   *CLIError   `json:"error,omitempty"`    // error details
	TraceID string      `json:"trace_id,omitempty"` // correlates the response with log lines
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "MIDDLE_DELETION", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

func (f *OutputFormatter) traceID() string {
	if f.NewTraceID != nil {
		return f.NewTraceID()
	}
	return uuid.Must(uuid.NewV7()).String()
}

// Success outputs a successful result in the configured format.
// In text mode data is printed with fmt.Println; commands with structured
// results render their own text and call Success only for JSON.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:  "ok",
			Data:    data,
			TraceID: f.traceID(),
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
			TraceID: f.traceID(),
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err in the configured format and returns the ExitError the
// command should return. Refused ledger operations exit with ExitFailure,
// everything else with ExitCommandError.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, details, exit := classify(err)
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(exit, message, err)
}

// classify maps an error to its response code, details and exit code.
func classify(err error) (string, interface{}, int) {
	var corruption *store.CorruptionError
	if errors.As(err, &corruption) {
		return string(corruption.Code), corruption.Details, ExitFailure
	}
	var schema *querysql.SchemaError
	if errors.As(err, &schema) {
		return string(schema.Code), map[string]string{"table": schema.Table, "property": schema.Property}, ExitCommandError
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == ExitCommandError {
		return ErrCodeInvalidArgument, nil, ExitCommandError
	}
	switch {
	case criteria.IsInvalid(err):
		return ErrCodeInvalidArgument, nil, ExitCommandError
	case config.IsValidation(err):
		return ErrCodeConfig, nil, ExitCommandError
	case store.IsAssertion(err):
		return ErrCodeGeneric, nil, ExitFailure
	}
	var storage *store.StorageError
	if errors.As(err, &storage) {
		return ErrCodeStorage, map[string]interface{}{"op": storage.Op, "retryable": storage.Retryable}, ExitFailure
	}
	return ErrCodeGeneric, nil, ExitFailure
}
