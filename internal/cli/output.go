package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graffiti-garden/implementation-federated/internal/engine"
	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed, or a stream carried errors
	ExitCommandError = 2 // Command error (bad arguments, unreadable config, database not found, etc.)
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

// OutputFormatter renders objects, channel stats and errors as text lines
// or as one JSON response per line.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostics and in-band errors (defaults to Writer)
	Verbose   bool
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`             // error kind, e.g. "NotFound"
	Message string `json:"message"`          // human-readable message
	Source  string `json:"source,omitempty"` // pod or "local" the error came from
}

// Success outputs a successful result in the configured format. text is
// printed in text mode.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Object outputs one object state.
func (f *OutputFormatter) Object(obj graffiti.Object) error {
	return f.Success(obj, objectLine(obj))
}

// Written outputs the acknowledgement of a write. previous is the state
// the write replaced; its timestamp is the write's.
func (f *OutputFormatter) Written(verb string, previous graffiti.Object) error {
	return f.Success(previous, fmt.Sprintf("%s %s at %d", verb, previous.Location, previous.LastModified))
}

// Stat outputs one channel aggregate.
func (f *OutputFormatter) Stat(st graffiti.ChannelStat) error {
	return f.Success(st, fmt.Sprintf("%s count=%d lastModified=%d", st.Channel, st.Count, st.LastModified))
}

// Synced outputs the outcome of fetching one location.
func (f *OutputFormatter) Synced(res engine.SyncResult) error {
	if res.Err != nil {
		return f.Failure(res.Err)
	}
	state := "stale"
	if res.Accepted {
		state = "accepted"
	}
	return f.Success(res.Object, fmt.Sprintf("%s %s %d", res.Location, state, res.Object.LastModified))
}

// Failure outputs an error carried by a stream. JSON errors go to Writer
// so they stay in sequence with the records; text errors go to ErrWriter.
func (f *OutputFormatter) Failure(err error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  cliError(err),
		})
	}
	_, werr := fmt.Fprintf(f.GetErrWriter(), "error: %v\n", err)
	return werr
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
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

func cliError(err error) *CLIError {
	ce := &CLIError{Code: string(graffiti.KindOf(err)), Message: err.Error()}
	var ge *graffiti.Error
	if errors.As(err, &ge) {
		ce.Source = ge.Source
	}
	if ce.Code == "" {
		ce.Code = string(graffiti.KindFailure)
	}
	return ce
}

// objectLine renders obj on one line:
//
//	<location> <lastModified> live|tombstone channels=[a,b] allowed=public|[x,y] <value>
func objectLine(obj graffiti.Object) string {
	state := "live"
	if obj.Tombstone {
		state = "tombstone"
	}
	allowed := "public"
	if !obj.Public() {
		allowed = "[" + strings.Join(obj.Allowed, ",") + "]"
	}

	value := obj.Value
	var buf bytes.Buffer
	if json.Compact(&buf, obj.Value) == nil {
		value = buf.Bytes()
	}
	return fmt.Sprintf("%s %d %s channels=[%s] allowed=%s %s",
		obj.Location, obj.LastModified, state, strings.Join(obj.Channels, ","), allowed, value)
}
