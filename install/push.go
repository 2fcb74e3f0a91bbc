package install

import (
	"context"
	"time"

	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/logging"
	"golang.org/x/sync/errgroup"
)

// pushOutcome is the result of one backend push.
type pushOutcome struct {
	alias   string
	mayFail bool
	err     error
}

// PushBackends pushes the bundle for hash to every backend with Push set.
//
// All pushes run concurrently and are awaited; a failing backend never
// cancels its siblings. Failures of backends with PushMayFail are logged and
// dropped. Of the remaining failures, the first in configuration order is
// returned. If that failure means the bundle already exists remotely and
// rePull is false, a *RePullNeededError is returned in its place.
//
// When clearSharedCache is set the shared cache is removed before any
// backend is prepared; a missing cache is fine, any other failure aborts.
func (s *Syncer) PushBackends(ctx context.Context, backends []backend.Config, hash string, rePull, clearSharedCache bool) error {
	logging.Trace(ctx, s.logger, "pushing bundle to backends", "hash", hash)

	targets := writeTargets(backends)
	if len(targets) == 0 && len(backends) > 0 {
		s.logger.InfoContext(ctx, "no backends with push enabled, nothing to push")
		return nil
	}

	if clearSharedCache {
		s.logger.InfoContext(ctx, "removing shared cache", "path", s.dirs.SharedCachePath())
		if err := s.dirs.ClearSharedCache(); err != nil {
			return err
		}
	}

	cacheDirs, err := s.prepareCacheDirs(targets)
	if err != nil {
		return err
	}

	outcomes := make([]pushOutcome, len(targets))
	var g errgroup.Group
	for i, cfg := range targets {
		s.logger.InfoContext(ctx, "pushing bundle", "hash", hash, "backend", cfg.Alias)
		g.Go(func() error {
			outcomes[i] = s.pushOne(ctx, cfg, hash, cacheDirs[i])
			return nil
		})
	}
	_ = g.Wait()

	tolerated, err := aggregate(outcomes)
	for _, o := range tolerated {
		s.logger.WarnContext(ctx, "push failed on backend allowed to fail",
			"hash", hash, "backend", o.alias, "error", o.err)
	}

	if err != nil {
		if backend.IsBundleAlreadyExists(err) && !rePull {
			rePullErr := newRePullNeededError(hash, err)
			s.logger.ErrorContext(ctx, rePullErr.Message(), "hash", hash)
			return rePullErr
		}
		return err
	}

	s.logger.DebugContext(ctx, "pushing to all backends completed", "hash", hash)
	return nil
}

// prepareCacheDirs creates a clean scratch directory for every target,
// concurrently. The first failure is returned once all have finished.
func (s *Syncer) prepareCacheDirs(targets []backend.Config) ([]string, error) {
	dirs := make([]string, len(targets))
	var g errgroup.Group
	for i, cfg := range targets {
		g.Go(func() error {
			dir, err := s.dirs.CreateCleanCacheDir(cfg)
			if err != nil {
				return err
			}
			dirs[i] = dir
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dirs, nil
}

func (s *Syncer) pushOne(ctx context.Context, cfg backend.Config, hash, cacheDir string) pushOutcome {
	tools := s.callTools(cfg, logging.OpPush)

	start := time.Now()
	err := cfg.Backend.Push(ctx, backend.Call{
		Hash:       hash,
		CacheDir:   cacheDir,
		ProjectDir: s.projectDir,
		Tools:      tools,
	})
	logging.LogOperation(ctx, tools.Log(), logging.OpPush, time.Since(start), err)

	if err == nil {
		s.logger.InfoContext(ctx, "pushed bundle", "hash", hash, "backend", cfg.Alias)
	}
	return pushOutcome{alias: cfg.Alias, mayFail: cfg.PushMayFail, err: err}
}

func writeTargets(backends []backend.Config) []backend.Config {
	var targets []backend.Config
	for _, b := range backends {
		if b.Push {
			targets = append(targets, b)
		}
	}
	return targets
}

// aggregate splits outcomes into tolerated failures and the first fatal one.
func aggregate(outcomes []pushOutcome) (tolerated []pushOutcome, err error) {
	for _, o := range outcomes {
		if o.err == nil {
			continue
		}
		if o.mayFail {
			tolerated = append(tolerated, o)
			continue
		}
		if err == nil {
			err = o.err
		}
	}
	return tolerated, err
}
