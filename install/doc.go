// Package install drives the pull, install and push cycle.
//
// A Syncer moves bundles between the project and its configured backends:
// PullBackends tries backends in configuration order until one has the
// bundle, and PushBackends delivers a freshly built bundle to every backend
// configured for writing, concurrently. An Installer composes the two with
// the fingerprint, the git history search and the package manager fallback.
//
// When a push finds that another producer already published the same
// fingerprint, PushBackends returns a *RePullNeededError and the Installer
// restarts the cycle once with re-pulling enabled.
package install
