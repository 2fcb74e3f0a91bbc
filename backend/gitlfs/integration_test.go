package gitlfs

import (
	"context"
	"os"
	osexec "os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/exec"
	"github.com/jmgilman/depsync/exec/exectest"
	"github.com/jmgilman/depsync/git"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const raceHash = "feedbeef"

// requireGit skips the test if git CLI is not available.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := osexec.LookPath("git"); err != nil {
		t.Skip("git CLI not available, skipping test")
	}
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// isolateGitConfig points git at a config with an identity and without the
// git-lfs filters, so bundles are stored as regular blobs.
func isolateGitConfig(t *testing.T) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "gitconfig")
	require.NoError(t, os.WriteFile(cfg, []byte("[user]\n\tname = Test User\n\temail = test@example.com\n"), 0o644))
	t.Setenv("GIT_CONFIG_GLOBAL", cfg)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
}

// createBundleRemote creates a bare repository with one commit on master.
func createBundleRemote(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	remoteDir := t.TempDir()
	_, err := gogit.PlainInit(remoteDir, true)
	require.NoError(t, err)

	seedDir := t.TempDir()
	seed, err := gogit.PlainInit(seedDir, false)
	require.NoError(t, err)

	wt, err := seed.Worktree()
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(wt.Filesystem, "README.md", []byte("bundles"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("init", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	_, err = seed.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{remoteDir}})
	require.NoError(t, err)
	require.NoError(t, git.New().Push(ctx, seedDir, "master"))

	return remoteDir
}

// newProject writes a node_modules tree whose marker file holds content.
func newProject(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "index.js"), []byte(content), 0o644))
	return dir
}

// realGit forwards calls to the git binary while recording them.
func realGit() *exectest.Fake {
	return exectest.New().Fallback(func(c exectest.Call) (*exec.Result, error) {
		return exec.New(exec.WithInheritEnv()).WithDir(c.Dir).WithEnv(c.Env).Run(c.Args...)
	})
}

func newRealBackend(t *testing.T, remote string, e exec.Executor) *Backend {
	t.Helper()
	b, err := New(Options{Repo: remote, DefaultBranch: "master"},
		WithGitClient(git.New(git.WithExecutor(e))),
		WithFilesystem(osfs.New("/")))
	require.NoError(t, err)
	return b
}

func localTags(t *testing.T, cacheDir, remote string) string {
	t.Helper()
	res, err := exec.New(exec.WithInheritEnv()).
		WithDir(filepath.Join(cacheDir, repoDirName(remote))).
		Run("git", "tag", "-l")
	require.NoError(t, err)
	return res.Stdout
}

func TestIntegration_ConcurrentPublishThenRePull(t *testing.T) {
	requireGit(t)
	isolateGitConfig(t)

	ctx := context.Background()
	remote := createBundleRemote(t)

	winner := newRealBackend(t, remote, realGit())
	winnerCall := backend.Call{Hash: raceHash, CacheDir: t.TempDir(), ProjectDir: newProject(t, "winner")}

	// The other producer publishes the same hash right before our tag push.
	loserGit := realGit()
	published := false
	loserGit.On(func(c exectest.Call) (*exec.Result, error) {
		if !published {
			published = true
			require.NoError(t, winner.Push(ctx, winnerCall))
		}
		return exec.New(exec.WithInheritEnv()).WithDir(c.Dir).WithEnv(c.Env).Run(c.Args...)
	}, "git", "push")

	loser := newRealBackend(t, remote, loserGit)
	loserCache := t.TempDir()

	err := loser.Push(ctx, backend.Call{Hash: raceHash, CacheDir: loserCache, ProjectDir: newProject(t, "loser")})
	require.Error(t, err)
	assert.True(t, backend.IsBundleAlreadyExists(err), "got %v", err)
	assert.Empty(t, localTags(t, loserCache, remote), "unpublished tag is removed")

	restored := t.TempDir()
	require.NoError(t, loser.Pull(ctx, backend.Call{Hash: raceHash, CacheDir: loserCache, ProjectDir: restored}))

	got, err := os.ReadFile(filepath.Join(restored, "node_modules", "pkg", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "winner", string(got))
}

func TestIntegration_FailedPublishLeavesNoTag(t *testing.T) {
	requireGit(t)
	isolateGitConfig(t)

	ctx := context.Background()
	remote := createBundleRemote(t)

	// Both the push and the cleanup fail, leaving a local-only tag behind.
	broken := realGit().
		Fail("fatal: Could not read from remote repository.\n", 128, "git", "push").
		Fail("error: could not delete tag\n", 1, "git", "tag", "-d")
	cache := t.TempDir()
	project := newProject(t, "local")

	err := newRealBackend(t, remote, broken).Push(ctx, backend.Call{Hash: raceHash, CacheDir: cache, ProjectDir: project})
	require.Error(t, err)
	assert.False(t, backend.IsBundleAlreadyExists(err))
	assert.Contains(t, localTags(t, cache, remote), TagName(raceHash))

	healthy := newRealBackend(t, remote, realGit())

	err = healthy.Pull(ctx, backend.Call{Hash: raceHash, CacheDir: cache, ProjectDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, backend.IsBundleNotFound(err), "local-only tag is pruned, got %v", err)

	require.NoError(t, healthy.Push(ctx, backend.Call{Hash: raceHash, CacheDir: cache, ProjectDir: project}))
}
