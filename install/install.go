package install

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/config"
	"github.com/jmgilman/depsync/errors"
	"github.com/jmgilman/depsync/exec"
	"github.com/jmgilman/depsync/fingerprint"
	"github.com/jmgilman/depsync/git"
	"github.com/jmgilman/depsync/logging"
)

// Options controls a single Install.
type Options struct {
	// Force removes an existing node_modules before installing.
	Force bool

	// RePull disables the re-pull signal; a bundle collision on push is
	// returned as an error instead.
	RePull bool
}

// Installer runs the full install cycle for a project.
type Installer struct {
	cfg      *config.Config
	backends []backend.Config
	syncer   *Syncer
	git      *git.Client
	exec     exec.Executor
	fs       billy.Filesystem
	logger   *slog.Logger
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithGitClient sets the git client used to search manifest history.
func WithGitClient(client *git.Client) InstallerOption {
	return func(i *Installer) {
		i.git = client
	}
}

// WithExecutor sets the executor the install command runs with.
func WithExecutor(e exec.Executor) InstallerOption {
	return func(i *Installer) {
		i.exec = e
	}
}

// WithFilesystem sets the filesystem holding the project.
func WithFilesystem(fs billy.Filesystem) InstallerOption {
	return func(i *Installer) {
		i.fs = fs
	}
}

// WithInstallerLogger sets the logger.
func WithInstallerLogger(logger *slog.Logger) InstallerOption {
	return func(i *Installer) {
		i.logger = logger
	}
}

// NewInstaller creates an Installer for the project the syncer serves.
func NewInstaller(cfg *config.Config, backends []backend.Config, syncer *Syncer, opts ...InstallerOption) *Installer {
	i := &Installer{
		cfg:      cfg,
		backends: backends,
		syncer:   syncer,
		exec:     exec.New(exec.WithInheritEnv(), exec.WithPassthrough()),
		fs:       osfs.New("/"),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.git == nil {
		i.git = git.New(git.WithLogger(i.logger))
	}
	return i
}

// Install populates node_modules for the project.
//
// The bundle for the current fingerprint is pulled if any backend has it.
// Otherwise, if enabled, older revisions of the manifest are tried and the
// package manager brings the pulled tree up to date. As a last resort the
// package manager installs from scratch. Whenever the tree was built locally
// it is pushed back. If the push finds the bundle was published meanwhile,
// the cycle is run once more with re-pulling enabled.
func (i *Installer) Install(ctx context.Context, opts Options) error {
	err := i.install(ctx, opts)
	if err != nil && !opts.RePull && IsRePullNeeded(err) {
		i.logger.WarnContext(ctx, "bundle was published concurrently, re-running install", "error", err)
		return i.install(ctx, Options{Force: true, RePull: true})
	}
	return err
}

// Fingerprint computes the fingerprint of the project's current manifest
// and lockfile.
func (i *Installer) Fingerprint() (string, error) {
	manifest, err := util.ReadFile(i.fs, i.path(i.cfg.ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.WrapWithContext(err, errors.CodeNotFound, "manifest file not found",
				map[string]interface{}{"path": i.path(i.cfg.ManifestFile)})
		}
		return "", errors.Wrap(err, errors.CodeInternal, "failed to read manifest file")
	}

	lockfile, err := i.readLockfile()
	if err != nil {
		return "", err
	}

	return fingerprint.Calculate(manifest, lockfile, i.cfg.PackageHash.Suffix)
}

func (i *Installer) install(ctx context.Context, opts Options) error {
	if err := i.prepareNodeModules(ctx, opts.Force); err != nil {
		return err
	}

	hash, err := i.Fingerprint()
	if err != nil {
		return err
	}
	i.logger.InfoContext(ctx, "calculated fingerprint", "hash", hash)

	_, err = i.syncer.PullBackends(ctx, i.backends, hash)
	if err == nil {
		return nil
	}
	if !backend.IsBundleNotFound(err) {
		return err
	}
	missErr := err

	if i.cfg.UseGitHistory.Depth > 0 {
		found, err := i.pullFromHistory(ctx)
		if err != nil {
			return err
		}
		if found {
			if err := i.runInstall(ctx); err != nil {
				return err
			}
			return i.push(ctx, hash, opts)
		}
	}

	if !i.cfg.FallbackToInstall {
		return missErr
	}

	i.logger.InfoContext(ctx, "no bundle found, running install command", "hash", hash)
	if err := i.runInstall(ctx); err != nil {
		return err
	}
	return i.push(ctx, hash, opts)
}

func (i *Installer) push(ctx context.Context, hash string, opts Options) error {
	return i.syncer.PushBackends(ctx, i.backends, hash, opts.RePull, i.cfg.ClearSharedCache)
}

// prepareNodeModules refuses to overwrite an existing node_modules unless
// force is set, in which case it is removed.
func (i *Installer) prepareNodeModules(ctx context.Context, force bool) error {
	nodeModules := i.path("node_modules")
	if _, err := i.fs.Lstat(nodeModules); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.CodeInternal, "failed to stat node_modules")
	}

	if !force {
		return errors.NewWithContext(errors.CodeAlreadyExists,
			"node_modules already exists; use --force to replace it",
			map[string]interface{}{"path": nodeModules})
	}

	i.logger.InfoContext(ctx, "removing existing node_modules", "path", nodeModules)
	if err := util.RemoveAll(i.fs, nodeModules); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to remove node_modules")
	}
	return nil
}

// pullFromHistory walks back through the manifest's git history and pulls
// the first bundle found for an older fingerprint. Running out of history
// or failing to read it ends the search without an error.
func (i *Installer) pullFromHistory(ctx context.Context) (bool, error) {
	paths := []string{i.path(i.cfg.ManifestFile), ""}
	if lockfile, err := i.readLockfile(); err == nil && lockfile != nil {
		paths[1] = i.path(i.cfg.LockFile)
	}

	for age := 1; age <= i.cfg.UseGitHistory.Depth; age++ {
		contents, err := i.git.OlderRevision(ctx, i.syncer.projectDir, paths, age)
		if err != nil {
			var tooOld *git.TooOldRevisionError
			if errors.As(err, &tooOld) {
				i.logger.InfoContext(ctx, "git history exhausted", "requested", tooOld.Requested, "available", tooOld.Available)
			} else {
				i.logger.WarnContext(ctx, "cannot search git history", "error", err)
			}
			return false, nil
		}

		var lockfile []byte
		if contents[1] != nil {
			lockfile = []byte(*contents[1])
		}
		hash, err := fingerprint.Calculate([]byte(*contents[0]), lockfile, i.cfg.PackageHash.Suffix)
		if err != nil {
			i.logger.WarnContext(ctx, "cannot fingerprint older manifest", "age", age, "error", err)
			continue
		}

		i.logger.InfoContext(ctx, "trying bundle from git history", "age", age, "hash", hash)
		_, err = i.syncer.PullBackends(ctx, i.backends, hash)
		if err == nil {
			return true, nil
		}
		if !backend.IsBundleNotFound(err) {
			return false, err
		}
	}
	return false, nil
}

func (i *Installer) runInstall(ctx context.Context) error {
	logging.Trace(ctx, i.logger, "running install command", "command", i.cfg.InstallCommand)

	_, err := i.exec.WithContext(ctx).WithDir(i.syncer.projectDir).Run(i.cfg.InstallCommand...)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeExecutionFailed, "install command failed",
			map[string]interface{}{"command": i.cfg.InstallCommand})
	}
	return nil
}

// readLockfile returns nil when no lockfile is configured or present.
func (i *Installer) readLockfile() ([]byte, error) {
	if i.cfg.LockFile == "" {
		return nil, nil
	}
	data, err := util.ReadFile(i.fs, i.path(i.cfg.LockFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read lockfile")
	}
	return data, nil
}

func (i *Installer) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(i.syncer.projectDir, name)
}
