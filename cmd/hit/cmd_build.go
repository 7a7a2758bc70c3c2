// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hitbuild/hit/internal/builder"
	"github.com/hitbuild/hit/internal/fsutil"
)

func runBuild(ctx context.Context, app *App, f *commandFlags, args []string) error {
	s, err := app.openProfile(ctx, f.profile)
	if err != nil {
		return err
	}
	opts, err := app.buildOptions(s, f)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		dir, err := s.builder.Build(ctx, args[0], opts)
		if err != nil {
			return err
		}
		spec, _ := s.builder.BuildSpec(args[0])
		app.printf("Package %s built at %s\n", spec.ArtifactID(), dir)
		return nil
	}

	_, err = app.buildProfile(ctx, s, opts, f.copy)
	return err
}

// buildProfile builds the dependencies and the profile, then publishes it
// next to the profile file, and returns the published path.
func (a *App) buildProfile(ctx context.Context, s *session, opts builder.BuildOptions, copyOut bool) (string, error) {
	if err := a.buildDependencies(ctx, s, opts); err != nil {
		return "", err
	}
	_, dir, err := s.builder.BuildProfile(ctx, opts)
	if err != nil {
		return "", err
	}

	out := s.profile.LinkName()
	if copyOut {
		if err := fsutil.EnsureTarget(out, true); err != nil {
			return "", err
		}
		if err := s.builder.ComposeProfileOut(ctx, out, fsutil.LinkCopy); err != nil {
			return "", err
		}
		a.printf("Profile build successful, copied to: %s\n", out)
		return out, nil
	}

	// Relinking an unchanged profile would wake up watchers of its directory.
	if current, err := os.Readlink(out); err != nil || current != dir {
		if err := fsutil.AtomicSymlink(dir, out); err != nil {
			return "", err
		}
	}
	a.printf("Profile build successful, link at: %s\n", out)
	return out, nil
}

// buildDependencies builds every unbuilt package of the profile.
func (a *App) buildDependencies(ctx context.Context, s *session, opts builder.BuildOptions) error {
	res, err := s.builder.BuildAll(ctx, opts)
	if err != nil {
		return err
	}
	if len(res.Built) == 0 {
		a.printf("[Profile dependencies are up to date]\n")
		return nil
	}
	s.logger.Debug("dependencies built", "rounds", res.Rounds, "packages", res.Built)
	a.printf("[Profile dependency build successful]\n")
	return nil
}

func runDevelop(ctx context.Context, app *App, f *commandFlags, args []string) error {
	mode, err := f.linkMode()
	if err != nil {
		return err
	}
	s, err := app.openProfile(ctx, f.profile)
	if err != nil {
		return err
	}
	opts, err := app.buildOptions(s, f)
	if err != nil {
		return err
	}

	target := s.profile.LinkName()
	if len(args) == 1 {
		target = args[0]
	}
	if target, err = filepath.Abs(target); err != nil {
		return err
	}

	if err := fsutil.EnsureTarget(target, f.force); err != nil {
		return err
	}
	if err := app.buildDependencies(ctx, s, opts); err != nil {
		return err
	}
	if err := s.builder.ComposeProfileOut(ctx, target, mode); err != nil {
		return fmt.Errorf("compose %s: %w", target, err)
	}
	app.printf("Development profile build %s successful\n", target)
	return nil
}
