// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/hitbuild/hit/internal/watch"
)

// runWatch builds the profile once, then rebuilds it after every change to
// the profile file or its local sources until interrupted. A failed build
// is reported and the watcher keeps running.
func runWatch(ctx context.Context, app *App, f *commandFlags, _ []string) error {
	s, err := app.openProfile(ctx, f.profile)
	if err != nil {
		return err
	}

	rebuild := func(ctx context.Context) error {
		// The profile may have changed, so reload it every time.
		s, err := app.openProfile(ctx, f.profile)
		if err != nil {
			return err
		}
		opts, err := app.buildOptions(s, f)
		if err != nil {
			return err
		}
		_, err = app.buildProfile(ctx, s, opts, false)
		return err
	}

	if err := rebuild(ctx); err != nil {
		renderError(app.stderr, err, app.flags.verbose, app.issueStyle())
	}
	app.printf("\n%s Watching %s for changes (Ctrl+C to stop)...\n", PathStyle.Render("→"), f.profile)

	w, err := watch.New(watch.Config{
		Roots:  watch.ProfileRoots(s.profile),
		Logger: s.logger,
		OnChange: func(ctx context.Context, changed []string) error {
			app.printf("%s %d change(s), rebuilding\n", PathStyle.Render("→"), len(changed))
			if err := rebuild(ctx); err != nil {
				renderError(app.stderr, err, app.flags.verbose, app.issueStyle())
			}
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	return w.Run(ctx)
}
