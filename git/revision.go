package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jmgilman/depsync/errors"
)

// TopLevel returns the absolute path of the repository containing dir.
func (c *Client) TopLevel(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// OlderRevision returns the contents of paths as of the age-th most recent
// commit touching any of them.
//
// Paths may be absolute or relative to dir. An empty path is a placeholder: it
// is not passed to git and its slot in the result is nil. The result has one
// entry per input path, in input order.
//
// If fewer than age commits touch the paths, a *TooOldRevisionError is
// returned.
func (c *Client) OlderRevision(ctx context.Context, dir string, paths []string, age int) ([]*string, error) {
	if age < 1 {
		return nil, errors.Newf(errors.CodeInvalidInput, "revision age must be at least 1, got %d", age)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to resolve directory")
	}
	absDir = evalSymlinks(absDir)

	top, err := c.TopLevel(ctx, absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root: %w", err)
	}

	relPaths := make([]string, len(paths))
	var queried []string
	for i, p := range paths {
		if p == "" {
			continue
		}
		rel, err := relativeToTop(top, absDir, p)
		if err != nil {
			return nil, err
		}
		relPaths[i] = rel
		queried = append(queried, rel)
	}

	result := make([]*string, len(paths))
	if len(queried) == 0 {
		return result, nil
	}

	args := append([]string{"--no-pager", "log", fmt.Sprintf("-%d", age), "--pretty=format:%h"}, queried...)
	out, err := c.run(ctx, top, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	revisions := lines(out)
	if len(revisions) < age {
		return nil, newTooOldRevisionError(age, len(revisions))
	}
	target := revisions[len(revisions)-1]

	for i, rel := range relPaths {
		if rel == "" {
			continue
		}
		content, err := c.run(ctx, top, "--no-pager", "show", target+":"+rel)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s at %s: %w", rel, target, err)
		}
		result[i] = &content
	}

	return result, nil
}

// relativeToTop rebases p onto the repository root. Absolute paths are taken
// as-is; relative paths are resolved from dir first.
func relativeToTop(top, dir, p string) (string, error) {
	var abs string
	if filepath.IsAbs(p) {
		abs = filepath.Join(evalSymlinks(filepath.Dir(p)), filepath.Base(p))
	} else {
		abs = filepath.Join(dir, p)
	}

	rel, err := filepath.Rel(top, abs)
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeInvalidInput, "path %s is not inside %s", p, top)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Newf(errors.CodeInvalidInput, "path %s is outside repository %s", p, top)
	}
	return filepath.ToSlash(rel), nil
}

// evalSymlinks resolves symlinks in p so it compares equal to the path git
// reports for the top level (macOS /tmp is a symlink, for example). Paths that
// do not exist are returned unchanged.
func evalSymlinks(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return p
}
