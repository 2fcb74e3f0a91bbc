// Package errors provides the structured error model shared by every depsync
// component.
//
// Errors carry a string ErrorCode for categorization, a retry classification,
// optional context metadata and an optional cause. They stay compatible with the
// standard library (errors.Is, errors.As, errors.Unwrap), so typed errors defined
// in other packages can embed a PlatformError and still be matched by type.
//
// # Creating errors
//
//	err := errors.New(errors.CodeNotFound, "bundle not found")
//	err := errors.Newf(errors.CodeInvalidInput, "revision age must be positive, got %d", age)
//
// # Wrapping errors
//
//	if err := backend.Push(ctx, call); err != nil {
//	    return errors.Wrap(err, errors.CodePublishFailed, "failed to push bundle")
//	}
//
// # Inspecting errors
//
// Components never inspect error text. They branch on codes:
//
//	if errors.GetCode(err) == errors.CodeAlreadyExists {
//	    // someone else already published this fingerprint
//	}
package errors
