package exec

import (
	"context"
	"io"
	"time"
)

// CommandWrapper prepends a fixed binary name to every Run call, which keeps
// call sites for frequently used tools (git, npm) short.
type CommandWrapper struct {
	executor Executor
	cmd      string
}

// NewWrapper creates a CommandWrapper for cmd on top of executor.
// The executor can be any Executor, including test fakes.
func NewWrapper(executor Executor, cmd string) *CommandWrapper {
	return &CommandWrapper{
		executor: executor,
		cmd:      cmd,
	}
}

func (w *CommandWrapper) with(e Executor) Executor {
	return &CommandWrapper{executor: e, cmd: w.cmd}
}

// WithEnv adds environment variables for the command.
func (w *CommandWrapper) WithEnv(env map[string]string) Executor {
	return w.with(w.executor.WithEnv(env))
}

// WithDir sets the working directory for the command.
func (w *CommandWrapper) WithDir(dir string) Executor {
	return w.with(w.executor.WithDir(dir))
}

// WithContext sets the context for the command.
func (w *CommandWrapper) WithContext(ctx context.Context) Executor {
	return w.with(w.executor.WithContext(ctx))
}

// WithDisableColors disables color output.
func (w *CommandWrapper) WithDisableColors() Executor {
	return w.with(w.executor.WithDisableColors())
}

// WithTimeout sets a timeout for the command.
func (w *CommandWrapper) WithTimeout(timeout time.Duration) Executor {
	return w.with(w.executor.WithTimeout(timeout))
}

// WithInheritEnv enables environment inheritance.
func (w *CommandWrapper) WithInheritEnv() Executor {
	return w.with(w.executor.WithInheritEnv())
}

// WithStdout sets the passthrough stdout writer.
func (w *CommandWrapper) WithStdout(out io.Writer) Executor {
	return w.with(w.executor.WithStdout(out))
}

// WithStderr sets the passthrough stderr writer.
func (w *CommandWrapper) WithStderr(out io.Writer) Executor {
	return w.with(w.executor.WithStderr(out))
}

// WithPassthrough enables output passthrough.
func (w *CommandWrapper) WithPassthrough() Executor {
	return w.with(w.executor.WithPassthrough())
}

// Run executes the wrapped binary with args.
func (w *CommandWrapper) Run(args ...string) (*Result, error) {
	fullArgs := append([]string{w.cmd}, args...)
	return w.executor.Run(fullArgs...)
}
