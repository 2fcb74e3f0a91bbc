package install

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/depsync/backend"
)

// fakeBackend is an in-memory backend. Bundles are only tracked by hash;
// a successful pull writes a marker file into node_modules.
type fakeBackend struct {
	mu      sync.Mutex
	fs      billy.Filesystem
	alias   string
	bundles map[string]bool
	pushes  []backend.Call
	pulls   []backend.Call

	pushErr error
	pullErr error

	// beforePush runs before the push is recorded.
	beforePush func()
}

func newFakeBackend(fs billy.Filesystem, alias string, hashes ...string) *fakeBackend {
	b := &fakeBackend{fs: fs, alias: alias, bundles: map[string]bool{}}
	for _, h := range hashes {
		b.bundles[h] = true
	}
	return b
}

func (b *fakeBackend) Push(_ context.Context, call backend.Call) error {
	if b.beforePush != nil {
		b.beforePush()
	}
	call.Tools.ReportProgress(1, 1)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushes = append(b.pushes, call)

	if b.pushErr != nil {
		return b.pushErr
	}
	if b.bundles[call.Hash] {
		return backend.BundleAlreadyExists(call.Hash, nil)
	}
	b.bundles[call.Hash] = true
	return nil
}

func (b *fakeBackend) Pull(_ context.Context, call backend.Call) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pulls = append(b.pulls, call)

	if b.pullErr != nil {
		return b.pullErr
	}
	if !b.bundles[call.Hash] {
		return backend.BundleNotFound(call.Hash, nil)
	}
	marker := filepath.Join(call.ProjectDir, "node_modules", ".pulled")
	return util.WriteFile(b.fs, marker, []byte(b.alias+" "+call.Hash), 0o644)
}

func (b *fakeBackend) Validate() error { return nil }

func (b *fakeBackend) pushCalls() []backend.Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Call(nil), b.pushes...)
}

func (b *fakeBackend) pullCalls() []backend.Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Call(nil), b.pulls...)
}

func (b *fakeBackend) config(push, mayFail bool) backend.Config {
	return backend.Config{
		Alias:       b.alias,
		Kind:        "fake",
		Backend:     b,
		Push:        push,
		PushMayFail: mayFail,
	}
}

// lstatErrorFS fails Lstat for one path.
type lstatErrorFS struct {
	billy.Filesystem
	path string
}

func (f *lstatErrorFS) Lstat(name string) (os.FileInfo, error) {
	if name == f.path {
		return nil, &os.PathError{Op: "lstat", Path: name, Err: os.ErrPermission}
	}
	return f.Filesystem.Lstat(name)
}
