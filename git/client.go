package git

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jmgilman/depsync/exec"
	"github.com/jmgilman/depsync/logging"
)

// messageEnv pins git's messages to untranslated English, which is what
// Classify matches against.
var messageEnv = map[string]string{"LC_ALL": "C"}

// Client runs git commands through an exec.Executor.
type Client struct {
	git    exec.Executor
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithExecutor sets the executor git commands are run with. The executor
// receives the full argv including the leading "git".
func WithExecutor(e exec.Executor) Option {
	return func(c *Client) {
		c.git = exec.NewWrapper(e, "git")
	}
}

// WithLogger sets the logger used to trace invocations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client. By default it runs the git binary on PATH with the
// parent environment and color output disabled. Every invocation runs in the
// C locale.
func New(opts ...Option) *Client {
	c := &Client{
		git:    exec.NewWrapper(exec.New(exec.WithInheritEnv(), exec.WithDisableColors()), "git"),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run executes git in dir and returns its stdout. Failures are returned raw;
// callers that write refs pass them through classifyError.
func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	logging.Trace(ctx, c.logger, "running git", "dir", dir, "args", args)

	result, err := c.git.WithContext(ctx).WithDir(dir).WithEnv(messageEnv).Run(args...)
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// runClassified is run with the failure passed through classifyError.
func (c *Client) runClassified(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := c.run(ctx, dir, args...)
	if err != nil {
		return "", classifyError(err)
	}
	return out, nil
}

// lines splits command output into non-empty trimmed lines.
func lines(out string) []string {
	var result []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return result
}
