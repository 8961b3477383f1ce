package git

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Result captures one invocation of the git binary. SpawnErr is set only
// when the process could not be started at all (binary missing, bad work
// dir); a started process that exits non-zero yields ExitCode and captured
// output instead.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	SpawnErr error
}

// OK reports whether the command started and exited zero.
func (r Result) OK() bool {
	return r.SpawnErr == nil && r.ExitCode == 0
}

// Output returns the combined stdout and stderr text. Signature matching in
// the publisher inspects this; git is not consistent about which stream
// carries a given diagnostic.
func (r Result) Output() string {
	return r.Stdout + r.Stderr
}

// String renders the invocation for diagnostics.
func (r Result) String() string {
	if r.SpawnErr != nil {
		return "git " + strings.Join(r.Args, " ") + ": " + r.SpawnErr.Error()
	}
	return "git " + strings.Join(r.Args, " ") + ": " + strings.TrimSpace(r.Output())
}

// Runner executes a git command in the given working directory.
// Tests substitute a fake; production code uses ShellRunner.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) Result
}

// ShellRunner implements Runner by invoking the git binary as a subprocess.
type ShellRunner struct{}

// NewShellRunner creates a Runner backed by the git binary.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run executes git with the given arguments, capturing both output streams.
func (s *ShellRunner) Run(ctx context.Context, dir string, args ...string) Result {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Args:   args,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.SpawnErr = err
		}
	}

	return res
}
