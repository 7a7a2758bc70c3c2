// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the hit command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	verbose    bool
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// newRootCommand builds the command tree for app from the command table.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "hit",
		Short: "Build software profiles from source",
		Long: TitleStyle.Render("hit") + SubtitleStyle.Render(" - build software profiles from source") + `

hit reads a profile (a YAML file listing packages, their sources, their
dependencies and a shell build recipe each), builds every package into a
content-addressed artifact store and links the result next to the profile.
Artifacts are identified by a hash of everything that goes into them, so
an unchanged package is never rebuilt.

` + SubtitleStyle.Render("Examples:") + `
  hit build                   Build default.yaml and link ./default
  hit build zlib              Build one package and its dependencies
  hit develop -l copy out     Materialize the profile into ./out
  hit status -p dev.yaml      Show which packages need a build
  hit show buildspec zlib     Print the build spec of a package`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/hit/config.cue)")

	for _, def := range commandTable() {
		root.AddCommand(def.cobra(app))
	}
	return root
}

// Execute runs the CLI and exits the process with its status.
// This is called by main.main().
func Execute() {
	os.Exit(run(context.Background(), NewApp(Dependencies{})))
}

// run executes the root command of app and returns the process exit code.
func run(ctx context.Context, app *App) int {
	err := fang.Execute(
		ctx,
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			renderError(w, err, app.flags.verbose, app.issueStyle())
		}),
	)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
