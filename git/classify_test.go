package git

import (
	stderrors "errors"
	"testing"

	"github.com/jmgilman/depsync/errors"
	"github.com/jmgilman/depsync/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		stderr   string
		wantKind Kind
		wantRef  string
	}{
		{
			name:     "local tag collision",
			stderr:   "fatal: tag 'depsync-0f1e2d-linux' already exists\n",
			wantKind: KindRefAlreadyExists,
			wantRef:  "depsync-0f1e2d-linux",
		},
		{
			name: "push rejected",
			stderr: "To github.com:example/cache.git\n" +
				" ! [rejected]        depsync-0f1e2d -> depsync-0f1e2d (already exists)\n" +
				"error: failed to push some refs to 'git@github.com:example/cache.git'\n",
			wantKind: KindRefAlreadyExists,
			wantRef:  "depsync-0f1e2d",
		},
		{
			name: "remote cannot lock ref",
			stderr: "To github.com:example/cache.git\n" +
				" ! [remote rejected] depsync-0f1e2d -> depsync-0f1e2d " +
				"(cannot lock ref 'refs/tags/depsync-0f1e2d': reference already exists)\n",
			wantKind: KindRefAlreadyExists,
			wantRef:  "refs/tags/depsync-0f1e2d",
		},
		{
			name:     "unrelated failure",
			stderr:   "fatal: unable to access 'https://example.com/': Could not resolve host\n",
			wantKind: KindGeneric,
		},
		{
			name:     "already exists without a ref",
			stderr:   "fatal: destination path 'cache' already exists and is not an empty directory.\n",
			wantKind: KindGeneric,
		},
		{
			name:     "empty",
			stderr:   "",
			wantKind: KindGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.stderr)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantRef, got.Ref)
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classifyError(nil))
	})

	t.Run("non exec error passes through", func(t *testing.T) {
		orig := stderrors.New("boom")
		assert.Same(t, orig, classifyError(orig))
	})

	t.Run("generic exec error passes through", func(t *testing.T) {
		orig := &exec.ExecError{Command: []string{"git", "push"}, ExitCode: 1, Stderr: "fatal: no route"}
		got := classifyError(orig)
		assert.Same(t, orig, got)
	})

	t.Run("ref collision", func(t *testing.T) {
		orig := &exec.ExecError{
			Command:  []string{"git", "tag", "depsync-abc"},
			ExitCode: 128,
			Stderr:   "fatal: tag 'depsync-abc' already exists",
		}
		got := classifyError(orig)

		var refErr *RefAlreadyExistsError
		require.True(t, errors.As(got, &refErr))
		assert.Equal(t, "depsync-abc", refErr.Ref)
		assert.Equal(t, errors.CodeAlreadyExists, errors.GetCode(got))

		ref, ok := errors.GetContext(got, "ref")
		require.True(t, ok)
		assert.Equal(t, "depsync-abc", ref)

		// the original failure stays reachable for diagnostics
		var execErr *exec.ExecError
		require.True(t, errors.As(got, &execErr))
		assert.Same(t, orig, execErr)
	})
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "generic", KindGeneric.String())
	assert.Equal(t, "ref-already-exists", KindRefAlreadyExists.String())
}
