package cachedir

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopBackend struct {
	keep bool
}

func (b *nopBackend) Pull(context.Context, backend.Call) error { return nil }
func (b *nopBackend) Push(context.Context, backend.Call) error { return nil }
func (b *nopBackend) Validate() error                          { return nil }
func (b *nopBackend) KeepCache() bool                          { return b.keep }

// statErrorFS fails every Lstat with err.
type statErrorFS struct {
	billy.Filesystem
	err error
}

func (f *statErrorFS) Lstat(string) (os.FileInfo, error) {
	return nil, f.err
}

func TestManager_Defaults(t *testing.T) {
	m := New(memfs.New(), "/project")
	assert.Equal(t, "/project/.depsync", m.Root())
	assert.Equal(t, filepath.Join("/project", "node_modules", ".cache"), m.SharedCachePath())

	m = New(memfs.New(), "/project", WithRoot("/tmp/scratch"), WithSharedCache("/tmp/shared"))
	assert.Equal(t, "/tmp/scratch", m.Root())
	assert.Equal(t, "/tmp/shared", m.SharedCachePath())
}

func TestManager_CreateCleanCacheDir(t *testing.T) {
	fs := memfs.New()
	m := New(fs, "/project")

	cfg := backend.Config{Alias: "local", Backend: &nopBackend{}}
	dir, err := m.CreateCleanCacheDir(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/project/.depsync/local", dir)

	require.NoError(t, util.WriteFile(fs, filepath.Join(dir, "leftover"), []byte("x"), 0o644))

	dir, err = m.CreateCleanCacheDir(cfg)
	require.NoError(t, err)

	entries, err := fs.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManager_CreateCleanCacheDir_KeepsCache(t *testing.T) {
	fs := memfs.New()
	m := New(fs, "/project")

	cfg := backend.Config{Alias: "git", Backend: &nopBackend{keep: true}}
	dir, err := m.CreateCleanCacheDir(cfg)
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(fs, filepath.Join(dir, "repo", "HEAD"), []byte("ref"), 0o644))

	dir, err = m.CreateCleanCacheDir(cfg)
	require.NoError(t, err)

	_, err = fs.Stat(filepath.Join(dir, "repo", "HEAD"))
	assert.NoError(t, err)
}

func TestManager_CreateCleanCacheDir_InvalidAlias(t *testing.T) {
	m := New(memfs.New(), "/project")

	for _, alias := range []string{"", "..", ".", "a/b"} {
		_, err := m.CreateCleanCacheDir(backend.Config{Alias: alias, Backend: &nopBackend{}})
		require.Error(t, err, alias)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	}
}

func TestManager_CreateCleanCacheDir_Concurrent(t *testing.T) {
	fs := memfs.New()
	m := New(fs, "/project")

	aliases := []string{"a", "b", "c", "d", "e", "f"}
	var wg sync.WaitGroup
	errs := make([]error, len(aliases))
	for i, alias := range aliases {
		wg.Add(1)
		go func(i int, alias string) {
			defer wg.Done()
			_, errs[i] = m.CreateCleanCacheDir(backend.Config{Alias: alias, Backend: &nopBackend{}})
		}(i, alias)
	}
	wg.Wait()

	for i, alias := range aliases {
		require.NoError(t, errs[i])
		info, err := fs.Stat(filepath.Join("/project/.depsync", alias))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestManager_ClearSharedCache(t *testing.T) {
	t.Run("missing is a no-op", func(t *testing.T) {
		m := New(memfs.New(), "/project")
		assert.NoError(t, m.ClearSharedCache())
	})

	t.Run("removes existing tree", func(t *testing.T) {
		fs := memfs.New()
		m := New(fs, "/project")
		require.NoError(t, util.WriteFile(fs, "/project/node_modules/.cache/babel/x.json", []byte("{}"), 0o644))
		require.NoError(t, util.WriteFile(fs, "/project/node_modules/left-pad/index.js", []byte("x"), 0o644))

		require.NoError(t, m.ClearSharedCache())

		_, err := fs.Stat("/project/node_modules/.cache")
		assert.True(t, os.IsNotExist(err))
		_, err = fs.Stat("/project/node_modules/left-pad/index.js")
		assert.NoError(t, err)
	})

	t.Run("other errors propagate", func(t *testing.T) {
		fs := &statErrorFS{Filesystem: memfs.New(), err: os.ErrPermission}
		m := New(fs, "/project")

		err := m.ClearSharedCache()
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrPermission)
	})
}
