// Package gitlfs stores bundles in a git repository, one tag per
// fingerprint, with the bundle archive tracked by git-lfs when available.
//
// The backend keeps a clone of the repository in its scratch directory
// between cycles. Push commits bundle.tar.gz on top of the default branch,
// tags the commit "depsync-<hash>" and pushes the tag; a tag that already
// exists on the remote surfaces as an ALREADY_EXISTS error so the push
// orchestrator can turn it into a re-pull. Pull checks out the tag and
// unpacks the archive.
package gitlfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/depsync/archive"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/errors"
	"github.com/jmgilman/depsync/git"
)

// Kind is the registry name of this backend.
const Kind = "git-lfs"

const (
	bundleFile = "bundle.tar.gz"
	tagPrefix  = "depsync-"
	lfsPattern = "*.tar.gz"
)

// Options configures the backend.
type Options struct {
	// Repo is the remote repository URL.
	Repo string `yaml:"repo"`

	// DefaultBranch is the branch bundle commits are based on.
	DefaultBranch string `yaml:"defaultBranch"`

	// CheckLfsAvailability makes a missing git-lfs an error instead of a
	// warning.
	CheckLfsAvailability bool `yaml:"checkLfsAvailability"`
}

// DefaultOptions returns options with defaults applied.
func DefaultOptions() Options {
	return Options{DefaultBranch: "master"}
}

// Backend is the git-lfs bundle backend.
type Backend struct {
	opts Options
	git  *git.Client
	fs   billy.Filesystem
}

// Option configures a Backend.
type Option func(*Backend)

// WithGitClient sets the git client.
func WithGitClient(c *git.Client) Option {
	return func(b *Backend) {
		b.git = c
	}
}

// WithFilesystem sets the filesystem used for archive I/O.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(b *Backend) {
		b.fs = fs
	}
}

// New creates a Backend.
func New(opts Options, options ...Option) (*Backend, error) {
	b := &Backend{
		opts: opts,
		git:  git.New(),
		fs:   osfs.New("/"),
	}
	for _, o := range options {
		o(b)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Factory builds a Backend from raw options for a backend.Registry.
func Factory(options ...Option) backend.Factory {
	return func(raw map[string]any) (backend.Backend, error) {
		opts := DefaultOptions()
		if err := backend.DecodeOptions(raw, &opts); err != nil {
			return nil, err
		}
		return New(opts, options...)
	}
}

// Validate checks the options.
func (b *Backend) Validate() error {
	if b.opts.Repo == "" {
		return errors.New(errors.CodeInvalidConfig, "git-lfs backend requires 'repo'")
	}
	if b.opts.DefaultBranch == "" {
		return errors.New(errors.CodeInvalidConfig, "git-lfs backend requires 'defaultBranch'")
	}
	return nil
}

// KeepCache keeps the clone between cycles.
func (b *Backend) KeepCache() bool {
	return true
}

// TagName returns the tag a bundle for hash is stored under.
func TagName(hash string) string {
	return tagPrefix + hash
}

// Push stores the bundle for call.Hash.
func (b *Backend) Push(ctx context.Context, call backend.Call) error {
	log := call.Tools.Log()
	tag := TagName(call.Hash)

	repoDir, err := b.ensureClone(ctx, call.CacheDir)
	if err != nil {
		return err
	}

	if err := b.git.Checkout(ctx, repoDir, b.opts.DefaultBranch); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", b.opts.DefaultBranch, err)
	}
	if err := b.git.ResetHard(ctx, repoDir, "origin/"+b.opts.DefaultBranch); err != nil {
		return fmt.Errorf("failed to reset to origin/%s: %w", b.opts.DefaultBranch, err)
	}

	lfsErr := b.git.IsLFSAvailable(ctx, repoDir)
	if lfsErr != nil {
		if b.opts.CheckLfsAvailability {
			return lfsErr
		}
		log.WarnContext(ctx, "git-lfs is not available, storing bundle as a regular blob", "reason", lfsErr.Error())
	} else if err := b.git.TrackLFS(ctx, repoDir, lfsPattern); err != nil {
		return fmt.Errorf("failed to track bundles with git-lfs: %w", err)
	}

	if err := b.writeBundle(ctx, call, filepath.Join(repoDir, bundleFile)); err != nil {
		return err
	}

	paths := []string{bundleFile}
	if lfsErr == nil {
		paths = append(paths, ".gitattributes")
	}
	if err := b.git.Add(ctx, repoDir, paths...); err != nil {
		return fmt.Errorf("failed to stage bundle: %w", err)
	}
	if err := b.git.Commit(ctx, repoDir, "Add "+tag); err != nil {
		return fmt.Errorf("failed to commit bundle: %w", err)
	}

	if err := b.git.Tag(ctx, repoDir, tag); err != nil {
		return b.mapRefError(call.Hash, err)
	}
	if err := b.git.Push(ctx, repoDir, tag); err != nil {
		// The unpublished tag would shadow the remote one on the next pull.
		if delErr := b.git.DeleteTag(ctx, repoDir, tag); delErr != nil {
			log.WarnContext(ctx, "failed to delete unpublished tag", "tag", tag, "error", delErr)
		}
		return b.mapRefError(call.Hash, err)
	}

	log.InfoContext(ctx, "pushed bundle", "tag", tag)
	return nil
}

// Pull restores the bundle for call.Hash into call.ProjectDir.
func (b *Backend) Pull(ctx context.Context, call backend.Call) error {
	tag := TagName(call.Hash)

	repoDir, err := b.ensureClone(ctx, call.CacheDir)
	if err != nil {
		return err
	}

	exists, err := b.git.TagExists(ctx, repoDir, tag)
	if err != nil {
		return fmt.Errorf("failed to look up tag %s: %w", tag, err)
	}
	if !exists {
		return backend.BundleNotFound(call.Hash, nil)
	}

	if err := b.git.Checkout(ctx, repoDir, tag); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", tag, err)
	}

	f, err := b.fs.Open(filepath.Join(repoDir, bundleFile))
	if err != nil {
		if os.IsNotExist(err) {
			return backend.BundleNotFound(call.Hash, err)
		}
		return fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	if err := archive.Unpack(ctx, b.fs, f, call.ProjectDir); err != nil {
		return fmt.Errorf("failed to unpack bundle: %w", err)
	}
	return nil
}

// ensureClone makes sure an up-to-date clone of the repository exists under
// cacheDir and returns its path. An existing clone is fetched with remote
// tags taking precedence over local ones.
func (b *Backend) ensureClone(ctx context.Context, cacheDir string) (string, error) {
	repoDir := filepath.Join(cacheDir, repoDirName(b.opts.Repo))

	if _, err := b.fs.Stat(repoDir); err == nil && b.git.IsRepo(ctx, repoDir) {
		if err := b.git.Fetch(ctx, repoDir); err != nil {
			return "", errors.Wrap(err, errors.CodeNetwork, "failed to fetch bundle repository")
		}
		return repoDir, nil
	}

	if err := b.fs.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := b.git.Clone(ctx, b.opts.Repo, repoDir); err != nil {
		return "", errors.Wrap(err, errors.CodeNetwork, "failed to clone bundle repository")
	}
	return repoDir, nil
}

func (b *Backend) writeBundle(ctx context.Context, call backend.Call, dst string) error {
	f, err := b.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create bundle file: %w", err)
	}

	packErr := archive.Pack(ctx, b.fs, call.ProjectDir, "node_modules", f, call.Tools.ReportProgress)
	closeErr := f.Close()
	if packErr != nil {
		return fmt.Errorf("failed to pack bundle: %w", packErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to write bundle file: %w", closeErr)
	}
	return nil
}

// mapRefError turns a ref collision into the backend contract's
// ALREADY_EXISTS error.
func (b *Backend) mapRefError(hash string, err error) error {
	var refErr *git.RefAlreadyExistsError
	if errors.As(err, &refErr) {
		return backend.BundleAlreadyExists(hash, err)
	}
	return err
}
