package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"macrorec/internal/macro"
	"macrorec/internal/recfile"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Runtime failure (hook install, playback errors)
	ExitCommandError = 2 // Command error (bad arguments, unreadable files)
)

// ExitError carries the exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not
// an ExitError map to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// formatSeconds renders an offset in seconds with millisecond precision.
func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3fs", s)
}

// writeInfo prints a recording summary.
func writeInfo(w io.Writer, name string, info recfile.Info) {
	fmt.Fprintf(w, "%s: %d events, %s\n", name, info.Events, formatSeconds(info.Duration))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, k := range macro.Kinds() {
		if n := info.Counts[k]; n > 0 {
			fmt.Fprintf(tw, "  %s\t%d\n", k, n)
		}
	}
	tw.Flush()
}

// describeCounts renders per-kind counts on one line.
func describeCounts(counts map[macro.Kind]int) string {
	var parts []string
	for _, k := range macro.Kinds() {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// syncWriter serialises writes from callbacks and status goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
