package exec

import (
	"context"
	"io"
	"time"
)

// Executor runs external commands.
//
// Every With* method returns a new Executor carrying the extra setting and
// leaves the receiver untouched, so one base executor can be shared by
// goroutines that each scope it to their own directory and context.
type Executor interface {
	// WithEnv adds environment variables for the command.
	WithEnv(env map[string]string) Executor

	// WithDir sets the working directory for the command.
	WithDir(dir string) Executor

	// WithContext sets the context; the process is killed when it is done.
	WithContext(ctx context.Context) Executor

	// WithDisableColors sets NO_COLOR, TERM=dumb and related variables.
	WithDisableColors() Executor

	// WithTimeout bounds the command's run time.
	WithTimeout(timeout time.Duration) Executor

	// WithInheritEnv starts from the parent process environment.
	WithInheritEnv() Executor

	// WithStdout sets the passthrough writer for stdout.
	WithStdout(w io.Writer) Executor

	// WithStderr sets the passthrough writer for stderr.
	WithStderr(w io.Writer) Executor

	// WithPassthrough streams output to the stdout/stderr writers while still
	// capturing it.
	WithPassthrough() Executor

	// Run executes the command given by args[0] with the remaining arguments.
	// A non-zero exit returns both the Result and an *ExecError.
	Run(args ...string) (*Result, error)
}

// Result represents the result of a command execution.
type Result struct {
	// Stdout is the captured standard output
	Stdout string

	// Stderr is the captured standard error
	Stderr string

	// Combined is stdout and stderr interleaved in write order
	Combined string

	// ExitCode is the exit code returned by the command, or -1 if it never ran
	ExitCode int
}

// Option configures a Command at creation time.
type Option func(*Command)

// WithEnv returns an Option that sets environment variables.
func WithEnv(env map[string]string) Option {
	return func(c *Command) {
		for k, v := range env {
			c.env[k] = v
		}
	}
}

// WithDir returns an Option that sets the default working directory.
func WithDir(dir string) Option {
	return func(c *Command) {
		c.dir = dir
	}
}

// WithDisableColors returns an Option that disables color output.
func WithDisableColors() Option {
	return func(c *Command) {
		c.disableColors = true
	}
}

// WithInheritEnv returns an Option that inherits the parent environment.
func WithInheritEnv() Option {
	return func(c *Command) {
		c.inheritEnv = true
	}
}

// WithStdout returns an Option that sets the passthrough stdout writer.
func WithStdout(w io.Writer) Option {
	return func(c *Command) {
		c.stdout = w
	}
}

// WithStderr returns an Option that sets the passthrough stderr writer.
func WithStderr(w io.Writer) Option {
	return func(c *Command) {
		c.stderr = w
	}
}

// WithPassthrough returns an Option that enables output passthrough.
func WithPassthrough() Option {
	return func(c *Command) {
		c.passthrough = true
	}
}
