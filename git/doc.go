// Package git drives the git command line on behalf of the git-lfs backend.
//
// Git reports most conditions only as human-oriented text on stderr, and that
// text drifts between versions. This package turns it into typed errors so
// callers never match strings themselves.
//
// # Error Model
//
// Every failed invocation passes through Classify, a pure function over the
// captured stderr. Exactly one outcome applies:
//
//   - *RefAlreadyExistsError: a tag or push collided with an existing ref.
//     Both "tag 'x' already exists" and "cannot lock ref 'x': reference
//     already exists" as well as the push summary "x -> x (already exists)"
//     map here, carrying the ref name.
//   - The original *exec.ExecError, unchanged, for everything else.
//
// Two further typed errors are produced by higher-level operations:
// *TooOldRevisionError when history is too short for OlderRevision, and
// *ExtensionUnavailableError when git-lfs is missing or not configured.
//
// All typed errors implement errors.PlatformError, so callers may branch with
// errors.GetCode as well as errors.As:
//
//	err := client.Push(ctx, dir, "depsync-abc")
//	var exists *git.RefAlreadyExistsError
//	if errors.As(err, &exists) {
//	    fmt.Println("remote already has", exists.Ref)
//	}
//
// # Historical Content
//
// OlderRevision returns file contents as they were N commits back, where the
// commits counted are those touching any of the requested files. Paths may be
// absolute, relative to the given directory, or empty. Empty paths are a
// placeholder and come back as nil without reaching git.
//
// # Testing
//
// The Client takes an exec.Executor, so tests script git's output with
// exectest.Fake instead of needing a git binary. Integration tests that do
// need git skip when it is not on PATH.
package git
