// Package exectest provides a scripted exec.Executor for tests.
package exectest

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jmgilman/depsync/exec"
)

// Call is one recorded Run invocation.
type Call struct {
	Dir  string
	Args []string
	Env  map[string]string
}

// Handler produces the outcome of a Run call.
type Handler func(call Call) (*exec.Result, error)

type rule struct {
	prefix  []string
	handler Handler
}

type recorder struct {
	mu       sync.Mutex
	calls    []Call
	rules    []rule
	fallback Handler
}

// Fake is a scripted exec.Executor. Responses are matched by argument prefix
// in registration order; unmatched calls succeed with empty output unless a
// fallback is set. With* calls return views that share the same recorder.
type Fake struct {
	rec *recorder
	dir string
	env map[string]string
	ctx context.Context
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{rec: &recorder{}, env: map[string]string{}}
}

// On registers a handler for calls whose arguments start with prefix.
func (f *Fake) On(handler Handler, prefix ...string) *Fake {
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	f.rec.rules = append(f.rec.rules, rule{prefix: prefix, handler: handler})
	return f
}

// Stdout registers a successful response with the given stdout.
func (f *Fake) Stdout(stdout string, prefix ...string) *Fake {
	return f.On(Output(stdout), prefix...)
}

// Fail registers a failing response with the given stderr and exit code.
func (f *Fake) Fail(stderr string, exitCode int, prefix ...string) *Fake {
	return f.On(Failure(stderr, exitCode), prefix...)
}

// Fallback sets the handler for unmatched calls.
func (f *Fake) Fallback(handler Handler) *Fake {
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	f.rec.fallback = handler
	return f
}

// Calls returns a snapshot of all recorded calls.
func (f *Fake) Calls() []Call {
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	out := make([]Call, len(f.rec.calls))
	copy(out, f.rec.calls)
	return out
}

// CallsMatching returns the recorded calls whose args start with prefix.
func (f *Fake) CallsMatching(prefix ...string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if hasPrefix(c.Args, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Commands returns each recorded call's arguments joined by spaces.
func (f *Fake) Commands() []string {
	calls := f.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, strings.Join(c.Args, " "))
	}
	return out
}

func (f *Fake) view() *Fake {
	env := make(map[string]string, len(f.env))
	for k, v := range f.env {
		env[k] = v
	}
	return &Fake{rec: f.rec, dir: f.dir, env: env, ctx: f.ctx}
}

func (f *Fake) WithEnv(env map[string]string) exec.Executor {
	v := f.view()
	for k, val := range env {
		v.env[k] = val
	}
	return v
}

func (f *Fake) WithDir(dir string) exec.Executor {
	v := f.view()
	v.dir = dir
	return v
}

func (f *Fake) WithContext(ctx context.Context) exec.Executor {
	v := f.view()
	v.ctx = ctx
	return v
}

func (f *Fake) WithDisableColors() exec.Executor        { return f.view() }
func (f *Fake) WithTimeout(time.Duration) exec.Executor { return f.view() }
func (f *Fake) WithInheritEnv() exec.Executor           { return f.view() }
func (f *Fake) WithStdout(io.Writer) exec.Executor      { return f.view() }
func (f *Fake) WithStderr(io.Writer) exec.Executor      { return f.view() }
func (f *Fake) WithPassthrough() exec.Executor          { return f.view() }

// Run records the call and returns the scripted outcome.
func (f *Fake) Run(args ...string) (*exec.Result, error) {
	if f.ctx != nil {
		if err := f.ctx.Err(); err != nil {
			return nil, &exec.ExecError{Command: args, ExitCode: -1, Err: err}
		}
	}

	call := Call{Dir: f.dir, Args: append([]string(nil), args...), Env: f.env}

	f.rec.mu.Lock()
	f.rec.calls = append(f.rec.calls, call)
	handler := f.rec.fallback
	for _, r := range f.rec.rules {
		if hasPrefix(args, r.prefix) {
			handler = r.handler
			break
		}
	}
	f.rec.mu.Unlock()

	if handler == nil {
		return &exec.Result{}, nil
	}
	return handler(call)
}

// Output returns a Handler that succeeds with stdout.
func Output(stdout string) Handler {
	return func(Call) (*exec.Result, error) {
		return &exec.Result{Stdout: stdout, Combined: stdout}, nil
	}
}

// Failure returns a Handler that fails with stderr and exitCode, the way a
// real process exiting non-zero would.
func Failure(stderr string, exitCode int) Handler {
	return func(c Call) (*exec.Result, error) {
		res := &exec.Result{Stderr: stderr, Combined: stderr, ExitCode: exitCode}
		return res, &exec.ExecError{
			Command:  c.Args,
			ExitCode: exitCode,
			Stderr:   stderr,
		}
	}
}

// Error returns a Handler that fails with err without an exec.ExecError.
func Error(err error) Handler {
	return func(Call) (*exec.Result, error) {
		return nil, err
	}
}

func hasPrefix(args, prefix []string) bool {
	if len(prefix) > len(args) {
		return false
	}
	for i, p := range prefix {
		if args[i] != p {
			return false
		}
	}
	return true
}
