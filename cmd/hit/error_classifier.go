// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/hitbuild/hit/internal/dag"
	"github.com/hitbuild/hit/internal/fsutil"
	"github.com/hitbuild/hit/internal/issue"
	"github.com/hitbuild/hit/internal/sourcecache"
	"github.com/hitbuild/hit/internal/store"
	"github.com/hitbuild/hit/pkg/profile"
)

// classifyError maps a command failure onto the issue catalog. It returns
// 0 when no catalog entry applies.
func classifyError(err error) issue.Id {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}

	var cycle *dag.CycleError
	switch {
	case errors.As(err, &cycle):
		return issue.DependencyCycleId
	case errors.Is(err, profile.ErrConfiguration) && errors.Is(err, fs.ErrNotExist):
		return issue.ProfileNotFoundId
	case errors.Is(err, profile.ErrConfiguration):
		return issue.ProfileInvalidId
	case errors.Is(err, store.ErrBuildFailed):
		return issue.BuildFailedId
	case errors.Is(err, fsutil.ErrTargetExists):
		return issue.TargetExistsId
	case errors.Is(err, store.ErrStoreCorrupt):
		return issue.StoreCorruptId
	case errors.Is(err, sourcecache.ErrKeyMismatch), errors.Is(err, sourcecache.ErrUnsafePath):
		return issue.SourceFetchFailedId
	}
	return 0
}

// formatErrorForDisplay formats an error for the user. ActionableErrors
// carry their own suggestions.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderError writes err to w. In verbose mode the matching issue page is
// rendered below the message in the glamour style named by style.
func renderError(w io.Writer, err error, verbose bool, style string) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}

	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))

	id := classifyError(err)
	if id == 0 {
		return
	}
	if !verbose {
		fmt.Fprintf(w, "%s\n", SubtitleStyle.Render("Run with --verbose for troubleshooting help."))
		return
	}
	if rendered, rerr := issue.Get(id).Render(style); rerr == nil {
		fmt.Fprint(w, rendered)
	}
}
