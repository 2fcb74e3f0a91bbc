package git

import (
	"context"

	"github.com/jmgilman/depsync/errors"
)

// Tag creates a lightweight tag at HEAD. A collision returns
// *RefAlreadyExistsError.
func (c *Client) Tag(ctx context.Context, dir, name string) error {
	_, err := c.runClassified(ctx, dir, "tag", name)
	return err
}

// DeleteTag removes the local tag name.
func (c *Client) DeleteTag(ctx context.Context, dir, name string) error {
	_, err := c.run(ctx, dir, "tag", "-d", name)
	return err
}

// TagExists reports whether the local repository has a tag named name.
func (c *Client) TagExists(ctx context.Context, dir, name string) (bool, error) {
	out, err := c.run(ctx, dir, "tag", "-l", name)
	if err != nil {
		return false, err
	}
	for _, line := range lines(out) {
		if line == name {
			return true, nil
		}
	}
	return false, nil
}

// Remote returns the first configured remote of the repository at dir.
func (c *Client) Remote(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "remote")
	if err != nil {
		return "", err
	}
	remotes := lines(out)
	if len(remotes) == 0 {
		return "", errors.New(errors.CodeNotFound, "repository has no remote configured")
	}
	return remotes[0], nil
}

// Push pushes the ref name to the repository's configured remote. A
// collision with an existing remote ref returns *RefAlreadyExistsError.
func (c *Client) Push(ctx context.Context, dir, name string) error {
	remote, err := c.Remote(ctx, dir)
	if err != nil {
		return err
	}
	_, err = c.runClassified(ctx, dir, "push", remote, name)
	return err
}
