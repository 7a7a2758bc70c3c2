// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"time"

	"github.com/hitbuild/hit/internal/issue"
)

// DefaultShell is the interpreter NativeRunner uses when Shell is empty.
const DefaultShell = "/bin/sh"

// NativeRunner runs recipes with the host shell as `sh -e -c <script>`.
type NativeRunner struct {
	Shell string
	// WaitDelay bounds how long Run waits for output pipes after the recipe
	// is killed on cancellation.
	WaitDelay time.Duration
}

// Name returns the runner name.
func (r *NativeRunner) Name() string { return RuntimeNative }

// Run implements Runner.
func (r *NativeRunner) Run(ctx context.Context, job *Job) error {
	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-e", "-c", job.Script, "build.sh")
	cmd.Dir = job.BuildDir
	cmd.Env = Environ(job)
	cmd.Stdout, cmd.Stderr = job.streams()
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("recipe interrupted: %w", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitError(exitErr.ExitCode())
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return issue.NewErrorContext().
			WithOperation("find shell").
			WithResource(shell).
			WithIssue(issue.ShellNotFoundId).
			WithSuggestion("Set build.runtime to \"virtual\" to use the embedded shell").
			Wrap(err).
			BuildError()
	}
	return fmt.Errorf("failed to execute recipe: %w", err)
}
