package git

import (
	"fmt"

	"github.com/jmgilman/depsync/errors"
)

// RefAlreadyExistsError reports that a tag or pushed ref already exists.
type RefAlreadyExistsError struct {
	errors.PlatformError

	// Ref is the name git reported as colliding.
	Ref string
}

func newRefAlreadyExistsError(ref string, cause error) *RefAlreadyExistsError {
	return &RefAlreadyExistsError{
		PlatformError: errors.WrapWithContext(
			cause,
			errors.CodeAlreadyExists,
			fmt.Sprintf("ref '%s' already exists", ref),
			map[string]interface{}{"ref": ref},
		),
		Ref: ref,
	}
}

// TooOldRevisionError reports that the requested files do not have enough
// history to go back the requested number of revisions.
type TooOldRevisionError struct {
	errors.PlatformError

	// Requested is the number of revisions asked for.
	Requested int

	// Available is the number of revisions git returned.
	Available int
}

func newTooOldRevisionError(requested, available int) *TooOldRevisionError {
	return &TooOldRevisionError{
		PlatformError: errors.NewWithContext(
			errors.CodeNotFound,
			fmt.Sprintf("history has %d revision(s), %d requested", available, requested),
			map[string]interface{}{"requested": requested, "available": available},
		),
		Requested: requested,
		Available: available,
	}
}

// ExtensionUnavailableError reports that a git extension is not installed or
// not configured for the repository.
type ExtensionUnavailableError struct {
	errors.PlatformError

	// Extension is the extension name, e.g. "lfs".
	Extension string

	// Reason describes which check failed.
	Reason string
}

func newExtensionUnavailableError(extension, reason string, cause error) *ExtensionUnavailableError {
	msg := fmt.Sprintf("git %s is not available: %s", extension, reason)
	ctx := map[string]interface{}{"extension": extension}

	var pe errors.PlatformError
	if cause != nil {
		pe = errors.WrapWithContext(cause, errors.CodeUnavailable, msg, ctx)
	} else {
		pe = errors.NewWithContext(errors.CodeUnavailable, msg, ctx)
	}

	return &ExtensionUnavailableError{
		PlatformError: pe,
		Extension:     extension,
		Reason:        reason,
	}
}
