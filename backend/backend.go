// Package backend defines the storage backend contract for bundles.
//
// A backend stores one bundle per fingerprint. The push orchestrator and the
// pull loop only ever see the Backend interface; concrete implementations
// live in subpackages (gitlfs, local, s3, oci) and register themselves with a
// Registry under their kind name.
package backend

import (
	"context"
	"log/slog"

	"github.com/jmgilman/depsync/errors"
	"github.com/jmgilman/depsync/logging"
)

// Backend stores and retrieves bundles.
//
// Push must return an error with code ALREADY_EXISTS (see BundleAlreadyExists)
// when the remote already holds a bundle for the hash, and Pull must return
// code NOT_FOUND (see BundleNotFound) when it does not. Other failures are
// returned as they are.
type Backend interface {
	// Pull fetches the bundle for call.Hash and unpacks it into
	// call.ProjectDir.
	Pull(ctx context.Context, call Call) error

	// Push packs call.ProjectDir's dependency tree and stores it under
	// call.Hash.
	Push(ctx context.Context, call Call) error

	// Validate checks the backend's options.
	Validate() error
}

// CacheKeeper is implemented by backends whose scratch directory must survive
// between cycles, such as a local clone of a remote repository.
type CacheKeeper interface {
	KeepCache() bool
}

// Call carries the arguments of a single Push or Pull.
type Call struct {
	// Hash is the bundle fingerprint.
	Hash string

	// CacheDir is the scratch directory owned by this backend for the call.
	CacheDir string

	// ProjectDir is the directory containing node_modules.
	ProjectDir string

	// Tools is the telemetry handle for the call.
	Tools *CallTools
}

// CallTools lets a backend report progress and log in the context of the
// call. A nil *CallTools is valid and discards everything.
type CallTools struct {
	Logger   *slog.Logger
	Progress func(current, total int64)
}

// Log returns the call's logger, or a discarding logger when none is set.
func (t *CallTools) Log() *slog.Logger {
	if t == nil || t.Logger == nil {
		return logging.Discard()
	}
	return t.Logger
}

// ReportProgress forwards to Progress if one is set.
func (t *CallTools) ReportProgress(current, total int64) {
	if t == nil || t.Progress == nil {
		return
	}
	t.Progress(current, total)
}

// Config is one configured backend.
type Config struct {
	// Alias uniquely identifies the backend in the configuration.
	Alias string

	// Kind is the registry name the backend was built from.
	Kind string

	// Backend is the constructed implementation.
	Backend Backend

	// Options are the raw options Backend was constructed from.
	Options map[string]any

	// Push marks the backend as a write target.
	Push bool

	// PushMayFail makes push failures on this backend non-fatal.
	PushMayFail bool
}

// KeepsCache reports whether the backend's scratch directory is preserved
// between cycles.
func (c Config) KeepsCache() bool {
	keeper, ok := c.Backend.(CacheKeeper)
	return ok && keeper.KeepCache()
}

// BundleNotFound returns a NOT_FOUND error for hash.
func BundleNotFound(hash string, cause error) error {
	msg := "bundle '" + hash + "' not found"
	ctx := map[string]interface{}{"hash": hash}
	if cause != nil {
		return errors.WrapWithContext(cause, errors.CodeNotFound, msg, ctx)
	}
	return errors.NewWithContext(errors.CodeNotFound, msg, ctx)
}

// BundleAlreadyExists returns an ALREADY_EXISTS error for hash.
func BundleAlreadyExists(hash string, cause error) error {
	msg := "bundle '" + hash + "' already exists"
	ctx := map[string]interface{}{"hash": hash}
	if cause != nil {
		return errors.WrapWithContext(cause, errors.CodeAlreadyExists, msg, ctx)
	}
	return errors.NewWithContext(errors.CodeAlreadyExists, msg, ctx)
}

// IsBundleNotFound reports whether err means the backend has no bundle.
func IsBundleNotFound(err error) bool {
	return errors.GetCode(err) == errors.CodeNotFound
}

// IsBundleAlreadyExists reports whether err means the backend already has
// the bundle.
func IsBundleAlreadyExists(err error) bool {
	return errors.GetCode(err) == errors.CodeAlreadyExists
}
