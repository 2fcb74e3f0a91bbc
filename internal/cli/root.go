// Package cli implements the depsync command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/backend/gitlfs"
	"github.com/jmgilman/depsync/backend/local"
	"github.com/jmgilman/depsync/backend/oci"
	"github.com/jmgilman/depsync/backend/s3"
	"github.com/jmgilman/depsync/cachedir"
	"github.com/jmgilman/depsync/config"
	"github.com/jmgilman/depsync/exec"
	"github.com/jmgilman/depsync/git"
	"github.com/jmgilman/depsync/install"
	"github.com/jmgilman/depsync/logging"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/jmgilman/depsync/internal/cli.Version=...".
var Version = "dev"

type app struct {
	configPath string
	dir        string
	logLevel   string

	stdout   io.Writer
	stderr   io.Writer
	fs       billy.Filesystem
	registry *backend.Registry
	executor exec.Executor
	logger   *slog.Logger
}

// Option configures the command tree.
type Option func(*app)

// WithOutput redirects command output and logs.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *app) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithFilesystem sets the filesystem projects are read from.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(a *app) {
		a.fs = fs
	}
}

// WithRegistry replaces the built-in backend registry.
func WithRegistry(r *backend.Registry) Option {
	return func(a *app) {
		a.registry = r
	}
}

// WithExecutor sets the executor the install command runs with.
func WithExecutor(e exec.Executor) Option {
	return func(a *app) {
		a.executor = e
	}
}

// NewRootCommand builds the depsync command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		fs:     osfs.New("/"),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "depsync",
		Short: "Share node_modules between machines through remote caches",
		Long: `depsync fingerprints a project's manifest and lockfile and restores
node_modules from the first configured backend holding a matching bundle.
When no bundle exists the package manager installs the tree and the result
is pushed to every writable backend.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "configuration file (default: .depsync.{cue,yaml,yml} in --dir)")
	flags.StringVarP(&a.dir, "dir", "d", ".", "project directory")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(a.installCommand(), a.calcCommand(), a.versionCommand())
	return root
}

// Execute runs the command line with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// PrintError writes err the way the CLI reports failures.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = logging.NewLogger(logging.Config{Level: level}, a.stderr)

	dir, err := filepath.Abs(a.dir)
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}
	a.dir = dir

	if a.configPath != "" {
		if a.configPath, err = filepath.Abs(a.configPath); err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
	}

	if a.registry == nil {
		a.registry = a.defaultRegistry()
	}
	return nil
}

func (a *app) defaultRegistry() *backend.Registry {
	r := backend.NewRegistry()
	gitClient := git.New(git.WithLogger(a.logger))
	r.Register(gitlfs.Kind, gitlfs.Factory(gitlfs.WithGitClient(gitClient), gitlfs.WithFilesystem(a.fs)))
	r.Register(local.Kind, local.Factory(local.WithFilesystem(a.fs)))
	r.Register(s3.Kind, s3.Factory(s3.WithFilesystem(a.fs)))
	r.Register(oci.Kind, oci.Factory(oci.WithFilesystem(a.fs)))
	return r
}

func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(ctx, a.fs, a.configPath)
	}
	return config.Load(ctx, a.fs, a.dir)
}

// projectPath resolves a configured path against the project directory.
func (a *app) projectPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.dir, p)
}

func (a *app) syncer(cfg *config.Config) *install.Syncer {
	dirs := cachedir.New(a.fs, a.dir,
		cachedir.WithRoot(a.projectPath(cfg.CacheDir)),
		cachedir.WithSharedCache(a.projectPath(cfg.SharedCacheDir)),
	)
	return install.NewSyncer(dirs, a.dir,
		install.WithLogger(a.logger),
		install.WithProgress(a.logProgress),
	)
}

func (a *app) logProgress(alias string, op logging.Operation, current, total int64) {
	logging.Trace(context.Background(), a.logger, "transfer progress",
		"backend", alias, "operation", op, "current", current, "total", total)
}

func (a *app) installer(cfg *config.Config, backends []backend.Config) *install.Installer {
	opts := []install.InstallerOption{
		install.WithFilesystem(a.fs),
		install.WithInstallerLogger(a.logger),
		install.WithGitClient(git.New(git.WithLogger(a.logger))),
	}
	if a.executor != nil {
		opts = append(opts, install.WithExecutor(a.executor))
	}
	return install.NewInstaller(cfg, backends, a.syncer(cfg), opts...)
}
