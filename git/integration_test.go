package git

import (
	"context"
	"os"
	osexec "os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/jmgilman/depsync/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireGit skips the test if git CLI is not available.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := osexec.LookPath("git"); err != nil {
		t.Skip("git CLI not available, skipping test")
	}
}

// commitFile writes content to name in the repository's worktree and commits it.
func commitFile(t *testing.T, repo *gogit.Repository, name, content string) {
	t.Helper()

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, util.WriteFile(wt.Filesystem, name, []byte(content), 0o644))
	_, err = wt.Add(name)
	require.NoError(t, err)

	_, err = wt.Commit("update "+name, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
}

// createHistoryRepo creates a repository whose package.json has three
// revisions v1, v2, v3 and whose README changes in between.
func createHistoryRepo(t *testing.T) (string, *gogit.Repository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	commitFile(t, repo, "package.json", `{"version":"1"}`)
	commitFile(t, repo, "README.md", "readme")
	commitFile(t, repo, "package.json", `{"version":"2"}`)
	commitFile(t, repo, "sub/package.json", `{"nested":true}`)
	commitFile(t, repo, "package.json", `{"version":"3"}`)

	return dir, repo
}

func TestIntegration_OlderRevision(t *testing.T) {
	requireGit(t)
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dir, _ := createHistoryRepo(t)
	client := New()

	got, err := client.OlderRevision(ctx, dir, []string{"package.json"}, 1)
	require.NoError(t, err)
	assert.Equal(t, `{"version":"3"}`, *got[0])

	got, err = client.OlderRevision(ctx, dir, []string{"package.json"}, 3)
	require.NoError(t, err)
	assert.Equal(t, `{"version":"1"}`, *got[0])

	got, err = client.OlderRevision(ctx, dir, []string{filepath.Join(dir, "package.json"), ""}, 2)
	require.NoError(t, err)
	assert.Equal(t, `{"version":"2"}`, *got[0])
	assert.Nil(t, got[1])

	_, err = client.OlderRevision(ctx, dir, []string{"package.json"}, 4)
	var tooOld *TooOldRevisionError
	require.True(t, errors.As(err, &tooOld))
	assert.Equal(t, 3, tooOld.Available)
}

func TestIntegration_OlderRevisionFromSubdirectory(t *testing.T) {
	requireGit(t)
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dir, _ := createHistoryRepo(t)
	client := New()

	got, err := client.OlderRevision(ctx, filepath.Join(dir, "sub"), []string{"package.json", "../package.json"}, 1)
	require.NoError(t, err)
	assert.Equal(t, `{"nested":true}`, *got[0])
	assert.Equal(t, `{"version":"3"}`, *got[1])
}

func TestIntegration_TagAndPushCollision(t *testing.T) {
	requireGit(t)
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dir, repo := createHistoryRepo(t)

	remoteDir := t.TempDir()
	_, err := gogit.PlainInit(remoteDir, true)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{remoteDir}})
	require.NoError(t, err)

	client := New()
	const tag = "depsync-0123abcd"

	require.NoError(t, client.Tag(ctx, dir, tag))
	exists, err := client.TagExists(ctx, dir, tag)
	require.NoError(t, err)
	assert.True(t, exists)

	err = client.Tag(ctx, dir, tag)
	var refErr *RefAlreadyExistsError
	require.True(t, errors.As(err, &refErr), "got %v", err)
	assert.Equal(t, tag, refErr.Ref)

	require.NoError(t, client.Push(ctx, dir, tag))

	// Move the tag to a new commit locally and push again: the remote
	// already has a different object under that name.
	require.NoError(t, repo.DeleteTag(tag))
	commitFile(t, repo, "package.json", `{"version":"4"}`)
	require.NoError(t, client.Tag(ctx, dir, tag))

	err = client.Push(ctx, dir, tag)
	require.True(t, errors.As(err, &refErr), "got %v", err)
	assert.Equal(t, errors.CodeAlreadyExists, errors.GetCode(err))
}

func TestIntegration_IsRepo(t *testing.T) {
	requireGit(t)

	ctx := context.Background()
	dir, _ := createHistoryRepo(t)
	client := New()

	assert.True(t, client.IsRepo(ctx, dir))

	notRepo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(notRepo, "file"), []byte("x"), 0o644))
	assert.False(t, client.IsRepo(ctx, notRepo))

	top, err := client.TopLevel(ctx, filepath.Join(dir, "sub"))
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved, top)
}
