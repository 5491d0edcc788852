package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	apperrors "applicant-portal/internal/common/errors"
	"applicant-portal/internal/models"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the server refused the request
	ExitCommandError = 2 // bad flags or the server could not be reached
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error

	reported bool
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

// GetExitCode extracts the exit code from an error.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Report prints err unless a formatter already did.
func Report(w io.Writer, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.reported {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

type CLIError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if app, ok := data.(*models.Application); ok {
		writeApplication(f.Writer, app)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(err error) error {
	code := ExitFailure
	stdErr, ok := apperrors.As(err)
	if !ok {
		stdErr = &apperrors.StandardError{Code: "CLIENT_ERROR", Message: err.Error()}
	}
	switch stdErr.Code {
	case "EXTERNAL_SERVICE_ERROR", "TIMEOUT_ERROR":
		code = ExitCommandError
	}

	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:      string(stdErr.Code),
				Message:   stdErr.Message,
				Retryable: stdErr.Retryable,
				Details:   stdErr.Metadata,
			},
		})
	} else {
		fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", stdErr.Code, stdErr.Message)
		if f.Verbose && stdErr.Details != "" {
			fmt.Fprintf(f.errWriter(), "Details: %s\n", stdErr.Details)
		}
	}
	return &ExitError{Code: code, Message: string(stdErr.Code), Err: err, reported: true}
}

// VerboseLog writes diagnostics to ErrWriter so JSON output stays clean.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func writeApplication(w io.Writer, app *models.Application) {
	fmt.Fprintf(w, "Application %s\n", app.ID)
	fmt.Fprintf(w, "  status:   %s\n", app.Status)
	fmt.Fprintf(w, "  consent:  %t\n", app.ConsentGiven)
	if !app.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "  updated:  %s\n", app.UpdatedAt.Format(time.RFC3339))
	}
	if len(app.Fields) == 0 {
		return
	}
	fmt.Fprintln(w, "  fields:")
	for _, name := range app.Fields.Keys() {
		fmt.Fprintf(w, "    %s = %v\n", name, app.Fields[name])
	}
}
