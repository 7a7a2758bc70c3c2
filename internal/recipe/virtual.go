// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// VirtualRunner interprets recipes with the embedded mvdan/sh interpreter.
// External programs are still executed from PATH; only the shell itself is
// in-process, so recipes behave the same on hosts without a POSIX sh.
type VirtualRunner struct {
	Logger *slog.Logger
}

// Name returns the runner name.
func (r *VirtualRunner) Name() string { return RuntimeVirtual }

// Run implements Runner.
func (r *VirtualRunner) Run(ctx context.Context, job *Job) error {
	prog, err := syntax.NewParser().Parse(strings.NewReader(job.Script), "build.sh")
	if err != nil {
		return fmt.Errorf("failed to parse script: %w", err)
	}

	stdout, stderr := job.streams()
	runner, err := interp.New(
		interp.Dir(job.BuildDir),
		interp.Env(expand.ListEnviron(Environ(job)...)),
		interp.StdIO(nil, stdout, stderr),
		interp.ExecHandlers(r.traceExec),
	)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return exitError(int(status))
		}
		return fmt.Errorf("script execution failed: %w", err)
	}
	return nil
}

// traceExec logs every external command at debug level.
func (r *VirtualRunner) traceExec(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		logger := r.Logger
		if logger == nil {
			logger = slog.Default()
		}
		hc := interp.HandlerCtx(ctx)
		logger.Debug("recipe exec", "dir", hc.Dir, "args", args)
		return next(ctx, args)
	}
}
