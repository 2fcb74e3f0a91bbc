package git

import (
	"context"
	"strings"
)

// lfsFilterKeys must all be present in "git config --list" for LFS content
// to be stored as pointers instead of full blobs.
var lfsFilterKeys = []string{
	"filter.lfs.clean",
	"filter.lfs.smudge",
	"filter.lfs.process",
}

// IsLFSAvailable returns nil when git-lfs is installed and its filters are
// configured for the repository at dir. Otherwise it returns an
// *ExtensionUnavailableError describing the failed check.
func (c *Client) IsLFSAvailable(ctx context.Context, dir string) error {
	if _, err := c.run(ctx, dir, "lfs", "version"); err != nil {
		return newExtensionUnavailableError("lfs", "git lfs is not installed", err)
	}

	out, err := c.run(ctx, dir, "config", "--list")
	if err != nil {
		return newExtensionUnavailableError("lfs", "cannot read git config", err)
	}

	present := make(map[string]bool)
	for _, line := range lines(out) {
		key, _, _ := strings.Cut(line, "=")
		present[key] = true
	}

	for _, key := range lfsFilterKeys {
		if !present[key] {
			return newExtensionUnavailableError("lfs", key+" is not configured; run 'git lfs install'", nil)
		}
	}

	return nil
}

// TrackLFS registers pattern with "git lfs track".
func (c *Client) TrackLFS(ctx context.Context, dir, pattern string) error {
	_, err := c.runClassified(ctx, dir, "lfs", "track", pattern)
	return err
}
