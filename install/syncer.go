package install

import (
	"log/slog"

	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/cachedir"
	"github.com/jmgilman/depsync/logging"
)

// ProgressFunc receives progress of a backend call.
type ProgressFunc func(alias string, op logging.Operation, current, total int64)

// Syncer transfers bundles between the project directory and backends.
// It is safe for concurrent use.
type Syncer struct {
	dirs       *cachedir.Manager
	projectDir string
	logger     *slog.Logger
	progress   ProgressFunc
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithProgress sets a callback for backend progress.
func WithProgress(fn ProgressFunc) SyncerOption {
	return func(s *Syncer) {
		s.progress = fn
	}
}

// NewSyncer creates a Syncer for projectDir whose scratch directories are
// allocated by dirs.
func NewSyncer(dirs *cachedir.Manager, projectDir string, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		dirs:       dirs,
		projectDir: projectDir,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// callTools builds the telemetry handle for one backend call.
func (s *Syncer) callTools(cfg backend.Config, op logging.Operation) *backend.CallTools {
	tools := &backend.CallTools{
		Logger: s.logger.With("backend", cfg.Alias, "call", string(op)),
	}
	if s.progress != nil {
		alias, progress := cfg.Alias, s.progress
		tools.Progress = func(current, total int64) {
			progress(alias, op, current, total)
		}
	}
	return tools
}
