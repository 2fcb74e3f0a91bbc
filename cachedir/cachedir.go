// Package cachedir manages per-backend scratch directories and the shared
// package-manager cache.
package cachedir

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/errors"
)

// DefaultRoot is the scratch root relative to the project directory.
const DefaultRoot = ".depsync"

// SharedCacheDir is the package manager's cache relative to the project
// directory. Bundles must not contain it.
const SharedCacheDir = "node_modules/.cache"

// Manager allocates scratch directories under a root and clears the shared
// cache. It is safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	fs          billy.Filesystem
	root        string
	sharedCache string
}

// Option configures a Manager.
type Option func(*Manager)

// WithRoot overrides the scratch root.
func WithRoot(root string) Option {
	return func(m *Manager) {
		m.root = root
	}
}

// WithSharedCache overrides the shared cache path.
func WithSharedCache(path string) Option {
	return func(m *Manager) {
		m.sharedCache = path
	}
}

// New creates a Manager for projectDir on fs.
func New(fs billy.Filesystem, projectDir string, opts ...Option) *Manager {
	m := &Manager{
		fs:          fs,
		root:        filepath.Join(projectDir, DefaultRoot),
		sharedCache: filepath.Join(projectDir, filepath.FromSlash(SharedCacheDir)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the scratch root.
func (m *Manager) Root() string {
	return m.root
}

// SharedCachePath returns the shared cache path.
func (m *Manager) SharedCachePath() string {
	return m.sharedCache
}

// CreateCleanCacheDir returns the scratch directory for cfg, creating it if
// needed. The directory is emptied first unless the backend keeps its cache.
func (m *Manager) CreateCleanCacheDir(cfg backend.Config) (string, error) {
	if cfg.Alias == "" || cfg.Alias != filepath.Base(cfg.Alias) || cfg.Alias == "." || cfg.Alias == ".." {
		return "", errors.Newf(errors.CodeInvalidInput, "invalid backend alias %q", cfg.Alias)
	}

	dir := filepath.Join(m.root, cfg.Alias)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !cfg.KeepsCache() {
		if err := util.RemoveAll(m.fs, dir); err != nil {
			return "", fmt.Errorf("failed to clear cache directory %s: %w", dir, err)
		}
	}

	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	return dir, nil
}

// ClearSharedCache removes the shared cache directory. A missing directory
// is not an error; any other failure is returned.
func (m *Manager) ClearSharedCache() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.fs.Lstat(m.sharedCache); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat shared cache %s: %w", m.sharedCache, err)
	}

	if err := util.RemoveAll(m.fs, m.sharedCache); err != nil {
		return fmt.Errorf("failed to remove shared cache %s: %w", m.sharedCache, err)
	}
	return nil
}
