package install

import (
	"fmt"

	"github.com/jmgilman/depsync/errors"
)

// RePullNeededError signals that the bundle for Hash was published by
// someone else while it was being built locally. The caller should discard
// its local build and pull the published bundle.
type RePullNeededError struct {
	errors.PlatformError

	// Hash is the fingerprint that collided.
	Hash string
}

func newRePullNeededError(hash string, cause error) *RePullNeededError {
	return &RePullNeededError{
		PlatformError: errors.WrapWithContext(
			cause,
			errors.CodeConflict,
			fmt.Sprintf("Bundle '%s' already exists in remote repo! Re-pulling it", hash),
			map[string]interface{}{"hash": hash},
		),
		Hash: hash,
	}
}

// IsRePullNeeded reports whether err carries a *RePullNeededError.
func IsRePullNeeded(err error) bool {
	var target *RePullNeededError
	return errors.As(err, &target)
}
