package install

import (
	"context"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/cachedir"
	"github.com/jmgilman/depsync/errors"
	"github.com/jmgilman/depsync/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "0123abcd"

func newTestSyncer(fs billy.Filesystem, opts ...SyncerOption) *Syncer {
	return NewSyncer(cachedir.New(fs, "/project"), "/project", opts...)
}

func exists(fs billy.Filesystem, path string) bool {
	_, err := fs.Lstat(path)
	return err == nil
}

func TestPushBackends_NoWriteTargets(t *testing.T) {
	fs := memfs.New()
	reader := newFakeBackend(fs, "reader")

	err := newTestSyncer(fs).PushBackends(context.Background(),
		[]backend.Config{reader.config(false, false)}, testHash, false, true)
	require.NoError(t, err)

	assert.Empty(t, reader.pushCalls())
	assert.False(t, exists(fs, "/project/.depsync"), "no scratch directory is created")
}

func TestPushBackends_EmptyConfig(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/project/node_modules/.cache/babel", 0o755))

	err := newTestSyncer(fs).PushBackends(context.Background(), nil, testHash, false, true)
	require.NoError(t, err)
	assert.False(t, exists(fs, "/project/node_modules/.cache"))
}

func TestPushBackends_PushesToWriteTargets(t *testing.T) {
	fs := memfs.New()
	first := newFakeBackend(fs, "first")
	reader := newFakeBackend(fs, "reader")
	second := newFakeBackend(fs, "second")

	// stale content from a previous cycle
	require.NoError(t, util.WriteFile(fs, "/project/.depsync/first/stale", []byte("x"), 0o644))

	err := newTestSyncer(fs).PushBackends(context.Background(), []backend.Config{
		first.config(true, false),
		reader.config(false, false),
		second.config(true, false),
	}, testHash, false, false)
	require.NoError(t, err)

	assert.Empty(t, reader.pushCalls())
	for _, b := range []*fakeBackend{first, second} {
		calls := b.pushCalls()
		require.Len(t, calls, 1, b.alias)
		assert.Equal(t, testHash, calls[0].Hash)
		assert.Equal(t, "/project", calls[0].ProjectDir)
		assert.Equal(t, "/project/.depsync/"+b.alias, calls[0].CacheDir)
		assert.NotNil(t, calls[0].Tools)
		assert.True(t, exists(fs, calls[0].CacheDir))
	}
	assert.False(t, exists(fs, "/project/.depsync/first/stale"), "scratch directory is cleaned")
	assert.False(t, exists(fs, "/project/.depsync/reader"))
}

func TestPushBackends_FailurePolicy(t *testing.T) {
	boom := errors.New(errors.CodeNetwork, "connection refused")

	tests := []struct {
		name    string
		mayFail bool
		wantErr bool
	}{
		{name: "tolerated failure", mayFail: true, wantErr: false},
		{name: "mandatory failure", mayFail: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := memfs.New()
			failing := newFakeBackend(fs, "failing")
			failing.pushErr = boom
			healthy := newFakeBackend(fs, "healthy")

			err := newTestSyncer(fs).PushBackends(context.Background(), []backend.Config{
				failing.config(true, tt.mayFail),
				healthy.config(true, false),
			}, testHash, false, false)

			if tt.wantErr {
				require.Error(t, err)
				assert.Same(t, boom, err)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, healthy.pushCalls(), 1, "siblings always run")
		})
	}
}

func TestPushBackends_FirstFailureInConfigOrder(t *testing.T) {
	fs := memfs.New()
	slowErr := errors.New(errors.CodeNetwork, "slow backend failed")
	fastErr := errors.New(errors.CodeNetwork, "fast backend failed")

	// fast fails before slow does; config order must still win
	fastDone := make(chan struct{})
	slow := newFakeBackend(fs, "slow")
	slow.pushErr = slowErr
	slow.beforePush = func() { <-fastDone }

	fast := newFakeBackend(fs, "fast")
	fast.pushErr = fastErr
	fast.beforePush = func() { close(fastDone) }

	err := newTestSyncer(fs).PushBackends(context.Background(), []backend.Config{
		slow.config(true, false),
		fast.config(true, false),
	}, testHash, false, false)
	assert.Same(t, slowErr, err)
}

func TestPushBackends_AlreadyExists(t *testing.T) {
	t.Run("signals re-pull", func(t *testing.T) {
		fs := memfs.New()
		remote := newFakeBackend(fs, "remote", testHash)

		err := newTestSyncer(fs).PushBackends(context.Background(),
			[]backend.Config{remote.config(true, false)}, testHash, false, false)
		require.Error(t, err)

		var rePull *RePullNeededError
		require.True(t, errors.As(err, &rePull))
		assert.Equal(t, testHash, rePull.Hash)
		assert.Equal(t, errors.CodeConflict, errors.GetCode(err))
		assert.Contains(t, err.Error(), "Bundle '"+testHash+"' already exists in remote repo! Re-pulling it")
		assert.True(t, IsRePullNeeded(err))
		assert.True(t, backend.IsBundleAlreadyExists(rePull.Unwrap()))
	})

	t.Run("propagates when re-pull already tried", func(t *testing.T) {
		fs := memfs.New()
		remote := newFakeBackend(fs, "remote", testHash)

		err := newTestSyncer(fs).PushBackends(context.Background(),
			[]backend.Config{remote.config(true, false)}, testHash, true, false)
		require.Error(t, err)
		assert.False(t, IsRePullNeeded(err))
		assert.True(t, backend.IsBundleAlreadyExists(err))
	})

	t.Run("tolerated on push-may-fail backend", func(t *testing.T) {
		fs := memfs.New()
		remote := newFakeBackend(fs, "remote", testHash)
		other := newFakeBackend(fs, "other")

		err := newTestSyncer(fs).PushBackends(context.Background(), []backend.Config{
			remote.config(true, true),
			other.config(true, false),
		}, testHash, false, false)
		require.NoError(t, err)
	})

	t.Run("other errors are not converted", func(t *testing.T) {
		fs := memfs.New()
		remote := newFakeBackend(fs, "remote")
		remote.pushErr = errors.New(errors.CodeInvalidConfig, "bad credentials")

		err := newTestSyncer(fs).PushBackends(context.Background(),
			[]backend.Config{remote.config(true, false)}, testHash, false, false)
		assert.False(t, IsRePullNeeded(err))
		assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
	})
}

func TestPushBackends_SharedCache(t *testing.T) {
	t.Run("removed when requested", func(t *testing.T) {
		fs := memfs.New()
		require.NoError(t, util.WriteFile(fs, "/project/node_modules/.cache/babel/x.json", []byte("{}"), 0o644))
		require.NoError(t, util.WriteFile(fs, "/project/node_modules/dep/index.js", []byte(""), 0o644))
		remote := newFakeBackend(fs, "remote")

		err := newTestSyncer(fs).PushBackends(context.Background(),
			[]backend.Config{remote.config(true, false)}, testHash, false, true)
		require.NoError(t, err)
		assert.False(t, exists(fs, "/project/node_modules/.cache"))
		assert.True(t, exists(fs, "/project/node_modules/dep/index.js"))
	})

	t.Run("kept when not requested", func(t *testing.T) {
		fs := memfs.New()
		require.NoError(t, util.WriteFile(fs, "/project/node_modules/.cache/x", []byte(""), 0o644))
		remote := newFakeBackend(fs, "remote")

		err := newTestSyncer(fs).PushBackends(context.Background(),
			[]backend.Config{remote.config(true, false)}, testHash, false, false)
		require.NoError(t, err)
		assert.True(t, exists(fs, "/project/node_modules/.cache/x"))
	})

	t.Run("missing cache is fine", func(t *testing.T) {
		fs := memfs.New()
		remote := newFakeBackend(fs, "remote")

		err := newTestSyncer(fs).PushBackends(context.Background(),
			[]backend.Config{remote.config(true, false)}, testHash, false, true)
		require.NoError(t, err)
		assert.Len(t, remote.pushCalls(), 1)
	})

	t.Run("stat failure aborts before any backend", func(t *testing.T) {
		fs := &lstatErrorFS{Filesystem: memfs.New(), path: "/project/node_modules/.cache"}
		remote := newFakeBackend(fs, "remote")

		err := newTestSyncer(fs).PushBackends(context.Background(),
			[]backend.Config{remote.config(true, false)}, testHash, false, true)
		require.Error(t, err)
		assert.Empty(t, remote.pushCalls())
		assert.False(t, exists(fs, "/project/.depsync/remote"))
	})
}

func TestPushBackends_ScratchDirFailureAborts(t *testing.T) {
	fs := memfs.New()
	good := newFakeBackend(fs, "good")
	bad := newFakeBackend(fs, "../escape")

	err := newTestSyncer(fs).PushBackends(context.Background(), []backend.Config{
		good.config(true, false),
		bad.config(true, false),
	}, testHash, false, false)
	require.Error(t, err)
	assert.Empty(t, good.pushCalls())
	assert.Empty(t, bad.pushCalls())
}

func TestPushBackends_Progress(t *testing.T) {
	fs := memfs.New()
	remote := newFakeBackend(fs, "remote")

	var mu sync.Mutex
	var seen []string
	syncer := newTestSyncer(fs, WithProgress(func(alias string, op logging.Operation, current, total int64) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, alias+":"+string(op))
	}))

	require.NoError(t, syncer.PushBackends(context.Background(),
		[]backend.Config{remote.config(true, false)}, testHash, false, false))
	assert.Equal(t, []string{"remote:push"}, seen)
}

func TestAggregate(t *testing.T) {
	errA := errors.New(errors.CodeNetwork, "a")
	errB := errors.New(errors.CodeNetwork, "b")
	errC := errors.New(errors.CodeNetwork, "c")

	tolerated, err := aggregate([]pushOutcome{
		{alias: "ok"},
		{alias: "a", mayFail: true, err: errA},
		{alias: "b", err: errB},
		{alias: "c", err: errC},
	})
	assert.Same(t, errB, err)
	require.Len(t, tolerated, 1)
	assert.Equal(t, "a", tolerated[0].alias)

	tolerated, err = aggregate(nil)
	assert.NoError(t, err)
	assert.Empty(t, tolerated)
}
