// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/hitbuild/hit/internal/issue"
	"github.com/hitbuild/hit/internal/libcheck"
)

func runCheckLibs(ctx context.Context, app *App, _ *commandFlags, args []string) error {
	s, err := app.openStore(ctx)
	if err != nil {
		return err
	}

	app.printf("Checking libs in '%s'...\n", args[0])
	findings, err := (&libcheck.Checker{}).Check(ctx, args[0], s.store.ArtifactRoot())
	for _, f := range findings {
		app.printf("Lib: %s\n%s\n\n", f.File, f.Library)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return issue.NewErrorContext().
			WithOperation("check shared libraries").
			WithResource(args[0]).
			WithIssue(issue.LddNotFoundId).
			WithSuggestion("Install ldd (glibc's ldd or musl's ldd wrapper)").
			Wrap(err).
			BuildError()
	}
	if err != nil {
		return err
	}

	if len(findings) > 0 {
		fmt.Fprintf(app.stderr, "%s %d libraries resolve outside %s\n",
			ErrorStyle.Render("Error:"), len(findings), s.store.ArtifactRoot())
		return &ExitError{Code: 1}
	}
	return nil
}
