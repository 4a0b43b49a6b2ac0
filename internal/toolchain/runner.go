package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Runner executes an external tool and blocks until it finishes.
// A nil error means the tool exited with status zero.
type Runner interface {
	Run(ctx context.Context, dir string, env map[string]string, name string, args ...string) error
}

// ExecRunner runs tools as child processes, streaming their output to the
// current process so build and signing diagnostics reach the user unchanged.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes name with args in dir (the current directory if dir is
// empty). The env map is applied as an overlay on top of the current
// environment for this single invocation only; the process-wide environment
// is never mutated.
func (r *ExecRunner) Run(ctx context.Context, dir string, env map[string]string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if len(env) > 0 {
		overlay := os.Environ()
		for key, value := range env {
			overlay = append(overlay, key+"="+value)
		}

		cmd.Env = overlay
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

// ExitStatus returns the exit code carried by an error from Run, or -1 if
// the error does not wrap a process exit.
func ExitStatus(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
