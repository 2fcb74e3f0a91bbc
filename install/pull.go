package install

import (
	"context"
	"time"

	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/logging"
)

// PullBackends tries each backend in configuration order and returns the
// alias of the first one that had the bundle for hash. A miss moves on to
// the next backend; any other failure stops the search. If no backend has
// the bundle, an error satisfying backend.IsBundleNotFound is returned.
func (s *Syncer) PullBackends(ctx context.Context, backends []backend.Config, hash string) (string, error) {
	logging.Trace(ctx, s.logger, "pulling bundle from backends", "hash", hash)

	for _, cfg := range backends {
		cacheDir, err := s.dirs.CreateCleanCacheDir(cfg)
		if err != nil {
			return "", err
		}

		tools := s.callTools(cfg, logging.OpPull)
		s.logger.InfoContext(ctx, "pulling bundle", "hash", hash, "backend", cfg.Alias)

		start := time.Now()
		err = cfg.Backend.Pull(ctx, backend.Call{
			Hash:       hash,
			CacheDir:   cacheDir,
			ProjectDir: s.projectDir,
			Tools:      tools,
		})

		switch {
		case err == nil:
			logging.LogOperation(ctx, tools.Log(), logging.OpPull, time.Since(start), nil)
			s.logger.InfoContext(ctx, "pulled bundle", "hash", hash, "backend", cfg.Alias)
			return cfg.Alias, nil
		case backend.IsBundleNotFound(err):
			s.logger.InfoContext(ctx, "bundle not found on backend", "hash", hash, "backend", cfg.Alias)
		default:
			logging.LogOperation(ctx, tools.Log(), logging.OpPull, time.Since(start), err)
			return "", err
		}
	}

	return "", backend.BundleNotFound(hash, nil)
}
