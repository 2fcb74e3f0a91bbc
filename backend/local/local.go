// Package local stores bundles as files in a directory, typically a shared
// volume on a CI runner.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/depsync/archive"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/errors"
)

// Kind is the registry name of this backend.
const Kind = "local"

// Options configures the backend.
type Options struct {
	// Directory holds the bundles.
	Directory string `yaml:"directory"`
}

// Backend is the local directory bundle backend.
type Backend struct {
	opts Options
	fs   billy.Filesystem
}

// Option configures a Backend.
type Option func(*Backend)

// WithFilesystem sets the filesystem.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(b *Backend) {
		b.fs = fs
	}
}

// New creates a Backend.
func New(opts Options, options ...Option) (*Backend, error) {
	b := &Backend{opts: opts, fs: osfs.New("/")}
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
		var opts Options
		if err := backend.DecodeOptions(raw, &opts); err != nil {
			return nil, err
		}
		return New(opts, options...)
	}
}

// Validate checks the options.
func (b *Backend) Validate() error {
	if b.opts.Directory == "" {
		return errors.New(errors.CodeInvalidConfig, "local backend requires 'directory'")
	}
	return nil
}

func (b *Backend) bundlePath(hash string) string {
	return filepath.Join(b.opts.Directory, hash+".tar.gz")
}

// Push writes the bundle to <directory>/<hash>.tar.gz. The file appears
// atomically: it is written under a temporary name and renamed.
func (b *Backend) Push(ctx context.Context, call backend.Call) error {
	dst := b.bundlePath(call.Hash)

	if _, err := b.fs.Stat(dst); err == nil {
		return backend.BundleAlreadyExists(call.Hash, nil)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", dst, err)
	}

	if err := b.fs.MkdirAll(b.opts.Directory, 0o755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	tmp, err := util.TempFile(b.fs, b.opts.Directory, "."+call.Hash+"-")
	if err != nil {
		return fmt.Errorf("failed to create temporary bundle: %w", err)
	}
	tmpName := tmp.Name()

	packErr := archive.Pack(ctx, b.fs, call.ProjectDir, "node_modules", tmp, call.Tools.ReportProgress)
	closeErr := tmp.Close()
	if packErr != nil || closeErr != nil {
		_ = b.fs.Remove(tmpName)
		if packErr != nil {
			return fmt.Errorf("failed to pack bundle: %w", packErr)
		}
		return fmt.Errorf("failed to write bundle: %w", closeErr)
	}

	// another producer may have finished while we packed
	if _, err := b.fs.Stat(dst); err == nil {
		_ = b.fs.Remove(tmpName)
		return backend.BundleAlreadyExists(call.Hash, nil)
	}

	if err := b.fs.Rename(tmpName, dst); err != nil {
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("failed to publish bundle: %w", err)
	}

	call.Tools.Log().InfoContext(ctx, "stored bundle", "path", dst)
	return nil
}

// Pull unpacks <directory>/<hash>.tar.gz into the project.
func (b *Backend) Pull(ctx context.Context, call backend.Call) error {
	src := b.bundlePath(call.Hash)

	f, err := b.fs.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return backend.BundleNotFound(call.Hash, nil)
		}
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	if err := archive.Unpack(ctx, b.fs, f, call.ProjectDir); err != nil {
		return fmt.Errorf("failed to unpack bundle: %w", err)
	}
	return nil
}
