// Package exec runs external commands and captures their output.
//
// It wraps os/exec behind the Executor interface so components that shell out
// (the git adapter, the install runner) can be tested with scripted fakes. A
// Command is configured fluently; each With* call returns a copy, so a shared
// base executor is safe to scope per goroutine:
//
//	base := exec.New(exec.WithInheritEnv(), exec.WithDisableColors())
//	git := exec.NewWrapper(base, "git")
//	result, err := git.WithDir(repo).WithContext(ctx).Run("rev-parse", "--show-toplevel")
//
// A non-zero exit returns an *ExecError carrying the command line, the exit
// code and the captured stdout and stderr:
//
//	var execErr *exec.ExecError
//	if errors.As(err, &execErr) {
//	    fmt.Println(execErr.Stderr)
//	}
//
// Passthrough mode streams output to the configured writers while still
// capturing it, which is how the package install command is run.
//
// Package exectest provides a scripted Executor for tests.
package exec
