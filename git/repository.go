package git

import (
	"context"
	"path/filepath"
	"strings"
)

// IsRepo reports whether dir is inside a git work tree.
func (c *Client) IsRepo(ctx context.Context, dir string) bool {
	out, err := c.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Clone clones url into dir. The parent of dir must exist.
func (c *Client) Clone(ctx context.Context, url, dir string) error {
	_, err := c.run(ctx, filepath.Dir(dir), "clone", url, dir)
	return err
}

// Fetch fetches branches and tags from the default remote. Remote tags
// replace local ones of the same name and local-only tags are pruned, so the
// clone's tags always mirror the remote.
func (c *Client) Fetch(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "fetch", "--tags", "--force", "--prune", "--prune-tags")
	return err
}

// Checkout force-checks out ref, discarding local modifications.
func (c *Client) Checkout(ctx context.Context, dir, ref string) error {
	_, err := c.run(ctx, dir, "checkout", "-f", ref)
	return err
}

// ResetHard resets the current branch and work tree to ref.
func (c *Client) ResetHard(ctx context.Context, dir, ref string) error {
	_, err := c.run(ctx, dir, "reset", "--hard", ref)
	return err
}

// Add stages paths.
func (c *Client) Add(ctx context.Context, dir string, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := c.run(ctx, dir, args...)
	return err
}

// Commit records staged changes with message.
func (c *Client) Commit(ctx context.Context, dir, message string) error {
	_, err := c.run(ctx, dir, "commit", "-m", message)
	return err
}
