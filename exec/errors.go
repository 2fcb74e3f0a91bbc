package exec

import (
	"fmt"
	"strings"
)

// ExecError is returned when a command exits non-zero or cannot be started.
// Stderr holds everything the process wrote to standard error; it is the only
// input callers have for classifying the failure.
type ExecError struct {
	// Command is the full command that was executed (including arguments)
	Command []string

	// ExitCode is the exit code returned by the command, or -1
	ExitCode int

	// Stdout is the captured standard output
	Stdout string

	// Stderr is the captured standard error
	Stderr string

	// Err is the underlying error from the execution
	Err error
}

// Error implements the error interface with a one-line summary.
func (e *ExecError) Error() string {
	cmd := strings.Join(e.Command, " ")
	if e.Err != nil {
		return fmt.Sprintf("command [%s] returned %d: %v", cmd, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("command [%s] returned %d", cmd, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *ExecError) Unwrap() error {
	return e.Err
}
