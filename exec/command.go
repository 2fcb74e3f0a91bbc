package exec

import (
	"context"
	"io"
	"os"
	osexec "os/exec"
	"time"
)

// Command is the os/exec backed implementation of Executor.
type Command struct {
	ctx           context.Context
	env           map[string]string
	dir           string
	timeout       time.Duration
	inheritEnv    bool
	disableColors bool
	passthrough   bool
	stdout        io.Writer
	stderr        io.Writer
}

// New creates a new Command with the given options.
func New(opts ...Option) *Command {
	cmd := &Command{
		ctx:    context.Background(),
		env:    make(map[string]string),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	for _, opt := range opts {
		opt(cmd)
	}

	return cmd
}

// clone copies the command so a With* call never mutates its receiver.
func (c *Command) clone() *Command {
	cp := *c
	cp.env = make(map[string]string, len(c.env))
	for k, v := range c.env {
		cp.env[k] = v
	}
	return &cp
}

// WithEnv adds environment variables for the command.
func (c *Command) WithEnv(env map[string]string) Executor {
	cp := c.clone()
	for k, v := range env {
		cp.env[k] = v
	}
	return cp
}

// WithDir sets the working directory for the command.
func (c *Command) WithDir(dir string) Executor {
	cp := c.clone()
	cp.dir = dir
	return cp
}

// WithContext sets the context for the command.
func (c *Command) WithContext(ctx context.Context) Executor {
	cp := c.clone()
	cp.ctx = ctx
	return cp
}

// WithDisableColors disables color output.
func (c *Command) WithDisableColors() Executor {
	cp := c.clone()
	cp.disableColors = true
	return cp
}

// WithTimeout sets a timeout for the command.
func (c *Command) WithTimeout(timeout time.Duration) Executor {
	cp := c.clone()
	cp.timeout = timeout
	return cp
}

// WithInheritEnv enables environment inheritance.
func (c *Command) WithInheritEnv() Executor {
	cp := c.clone()
	cp.inheritEnv = true
	return cp
}

// WithStdout sets the passthrough stdout writer.
func (c *Command) WithStdout(w io.Writer) Executor {
	cp := c.clone()
	cp.stdout = w
	return cp
}

// WithStderr sets the passthrough stderr writer.
func (c *Command) WithStderr(w io.Writer) Executor {
	cp := c.clone()
	cp.stderr = w
	return cp
}

// WithPassthrough enables output passthrough.
func (c *Command) WithPassthrough() Executor {
	cp := c.clone()
	cp.passthrough = true
	return cp
}

// environ builds the child environment. A nil result makes os/exec inherit
// the parent environment unchanged.
func (c *Command) environ() []string {
	if len(c.env) == 0 && !c.disableColors {
		if c.inheritEnv {
			return nil
		}
		return []string{}
	}

	var env []string
	if c.inheritEnv {
		env = os.Environ()
	}
	for k, v := range c.env {
		env = append(env, k+"="+v)
	}
	if c.disableColors {
		env = append(env,
			"NO_COLOR=1",
			"TERM=dumb",
			"CLICOLOR=0",
			"CLICOLOR_FORCE=0",
			"FORCE_COLOR=0",
		)
	}
	return env
}

// Run executes the command with the given arguments.
func (c *Command) Run(args ...string) (*Result, error) {
	if len(args) == 0 {
		return nil, &ExecError{
			Command:  args,
			ExitCode: -1,
			Err:      osexec.ErrNotFound,
		}
	}

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := osexec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.dir
	cmd.Env = c.environ()

	var stdoutPass, stderrPass io.Writer
	if c.passthrough {
		stdoutPass, stderrPass = c.stdout, c.stderr
	}
	combined := &lockedBuffer{}
	stdout := newCapture(combined, stdoutPass)
	stderr := newCapture(combined, stderrPass)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
		ExitCode: exitCode,
	}

	if err != nil {
		return result, &ExecError{
			Command:  args,
			ExitCode: exitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			Err:      err,
		}
	}

	return result, nil
}
