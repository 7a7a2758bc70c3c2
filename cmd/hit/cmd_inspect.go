// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/hitbuild/hit/internal/fsutil"
)

func runStatus(ctx context.Context, app *App, f *commandFlags, _ []string) error {
	s, err := app.openProfile(ctx, f.profile)
	if err != nil {
		return err
	}
	for _, st := range s.builder.StatusReport() {
		state := WarningStyle.Render("needs build")
		if st.Built {
			state = SuccessStyle.Render("OK")
		}
		app.printf("%-50s [%s]\n", st.Spec.ShortID(), state)
	}
	return nil
}

func runShowBuildSpec(ctx context.Context, app *App, f *commandFlags, args []string) error {
	s, err := app.openProfile(ctx, f.profile)
	if err != nil {
		return err
	}
	spec, err := s.builder.BuildSpec(args[0])
	if err != nil {
		return err
	}
	data, err := spec.Indent()
	if err != nil {
		return err
	}
	app.printf("%s\n", data)
	return nil
}

func runShowScript(ctx context.Context, app *App, f *commandFlags, args []string) error {
	s, err := app.openProfile(ctx, f.profile)
	if err != nil {
		return err
	}
	script, err := s.builder.BuildScript(args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(app.stdout, script)
	return nil
}

// runBuildDir writes a package's build directory for debugging. The target
// defaults to the package's short id in the current directory.
func runBuildDir(ctx context.Context, app *App, f *commandFlags, args []string) error {
	s, err := app.openProfile(ctx, f.profile)
	if err != nil {
		return err
	}
	spec, err := s.builder.BuildSpec(args[0])
	if err != nil {
		return err
	}
	target := spec.ShortID()
	if len(args) == 2 {
		target = args[1]
	}

	if err := fsutil.EnsureTarget(target, f.force); err != nil {
		return err
	}
	if err := s.builder.PrepareBuildDir(ctx, args[0], target); err != nil {
		return err
	}
	app.printf("Build directory of %s prepared in %s\n", spec.ArtifactID(), target)
	return nil
}
