// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitbuild/hit/internal/fsutil"
)

// MetaDir is the per-artifact metadata directory, never merged into a profile.
const MetaDir = "_hit"

// ComposeRunner realizes a profile: it links the files of every dependency
// artifact into the staging directory, in composition order. When two
// artifacts provide the same file the earlier one is kept and the conflict is
// logged.
type ComposeRunner struct {
	Mode   fsutil.LinkMode
	Logger *slog.Logger
}

// Name returns the runner name.
func (r *ComposeRunner) Name() string { return "compose" }

// Run implements Runner.
func (r *ComposeRunner) Run(ctx context.Context, job *Job) error {
	return Compose(ctx, job.Dependencies, job.ArtifactDir, r.mode(), r.logger())
}

// Compose merges the artifact directories of deps into dst.
func Compose(ctx context.Context, deps []Dependency, dst string, mode fsutil.LinkMode, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dep := range deps {
		if err := ctx.Err(); err != nil {
			return err
		}
		conflicts, err := fsutil.LinkTree(dep.Dir, dst, mode, skipMeta)
		if err != nil {
			return fmt.Errorf("compose %s: %w", dep.ID, err)
		}
		for _, rel := range conflicts {
			logger.Warn("file provided by more than one package, keeping the first", "path", rel, "skipped", dep.Name)
		}
	}
	return nil
}

func (r *ComposeRunner) mode() fsutil.LinkMode {
	if r.Mode == "" {
		return fsutil.LinkAbsolute
	}
	return r.Mode
}

func (r *ComposeRunner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func skipMeta(rel string) bool { return rel == MetaDir }
