// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hitbuild/hit/internal/fsutil"
)

const defaultProfile = "default.yaml"

type (
	// commandFlags collects every per-command flag. Each command binds the
	// subset it understands; the rest keep their zero values.
	commandFlags struct {
		profile  string
		jobs     int
		keep     string
		parallel int
		force    bool
		link     string
		copy     bool
	}

	// commandDef is one row of the command table.
	commandDef struct {
		use   string
		short string
		long  string
		args  cobra.PositionalArgs
		flags func(fs *pflag.FlagSet, f *commandFlags)
		run   func(ctx context.Context, app *App, f *commandFlags, args []string) error
		subs  []commandDef
	}
)

// commandTable lists every hit subcommand.
func commandTable() []commandDef {
	return []commandDef{
		{
			use:   "build [package]",
			short: "Build a profile, or a single package and its dependencies",
			long: `Build every package of the profile, then the profile itself, and point a
symlink named like the profile file without .yaml at the result.

With a package argument only that package and the packages it depends on
are built; the profile symlink is not updated.`,
			args:  cobra.MaximumNArgs(1),
			flags: withFlags(profileFlag, buildFlags, copyFlag),
			run:   runBuild,
		},
		{
			use:   "develop [target]",
			short: "Materialize the profile into a directory",
			long: `Build the profile dependencies and compose them into target (by default the
profile path without .yaml). Files are linked with absolute symlinks unless
--link selects relative symlinks or copies.`,
			args:  cobra.MaximumNArgs(1),
			flags: withFlags(profileFlag, buildFlags, forceFlag, linkFlags),
			run:   runDevelop,
		},
		{
			use:   "status",
			short: "Show which packages of the profile are built",
			args:  cobra.NoArgs,
			flags: withFlags(profileFlag),
			run:   runStatus,
		},
		{
			use:   "show",
			short: "Show build information for a package",
			subs: []commandDef{
				{
					use:   "buildspec <package>",
					short: "Print the build spec document (\"profile\" for the profile package)",
					args:  cobra.ExactArgs(1),
					flags: withFlags(profileFlag),
					run:   runShowBuildSpec,
				},
				{
					use:   "script <package>",
					short: "Print the build script of a package",
					args:  cobra.ExactArgs(1),
					flags: withFlags(profileFlag),
					run:   runShowScript,
				},
			},
		},
		{
			use:   "bdir <package> [target]",
			short: "Create the build directory of a package without building it",
			args:  cobra.RangeArgs(1, 2),
			flags: withFlags(profileFlag, forceFlag),
			run:   runBuildDir,
		},
		{
			use:   "check-libs <profile-dir>",
			short: "Report shared libraries that resolve outside the artifact store",
			long: `Run ldd on every shared object under profile-dir and list the libraries
that are neither host system libraries nor provided by the artifact store.
Exits non-zero when any are found.`,
			args: cobra.ExactArgs(1),
			run:  runCheckLibs,
		},
		{
			use:   "watch",
			short: "Rebuild the profile whenever it or its local sources change",
			args:  cobra.NoArgs,
			flags: withFlags(profileFlag, buildFlags),
			run:   runWatch,
		},
		{
			use:   "config",
			short: "Manage hit configuration",
			long: `Manage hit configuration.

Configuration is stored in:
  - Linux: $XDG_CONFIG_HOME/hit/config.cue (~/.config/hit/config.cue)
  - macOS: ~/Library/Application Support/hit/config.cue
  - Windows: %APPDATA%\hit\config.cue

Every value can be overridden with a HIT_ environment variable, for
example HIT_BUILD_JOBS=8 or HIT_STORE_ARTIFACT_ROOT=/srv/hit.`,
			subs: []commandDef{
				{use: "show", short: "Show the effective configuration", args: cobra.NoArgs, run: runConfigShow},
				{use: "path", short: "Show the configuration file path", args: cobra.NoArgs, run: runConfigPath},
				{use: "init", short: "Create the default configuration file", args: cobra.NoArgs, run: runConfigInit},
				{use: "dump", short: "Print the effective configuration as CUE", args: cobra.NoArgs, run: runConfigDump},
			},
		},
	}
}

// cobra converts the definition into a cobra command bound to app.
func (d commandDef) cobra(app *App) *cobra.Command {
	var f commandFlags
	c := &cobra.Command{
		Use:   d.use,
		Short: d.short,
		Long:  d.long,
		Args:  d.args,
	}
	if d.flags != nil {
		d.flags(c.Flags(), &f)
	}
	if d.run != nil {
		c.RunE = func(c *cobra.Command, args []string) error {
			return d.run(c.Context(), app, &f, args)
		}
	}
	for _, sub := range d.subs {
		c.AddCommand(sub.cobra(app))
	}
	return c
}

func withFlags(setups ...func(*pflag.FlagSet, *commandFlags)) func(*pflag.FlagSet, *commandFlags) {
	return func(fs *pflag.FlagSet, f *commandFlags) {
		for _, setup := range setups {
			setup(fs, f)
		}
	}
}

func profileFlag(fs *pflag.FlagSet, f *commandFlags) {
	fs.StringVarP(&f.profile, "profile", "p", defaultProfile, "yaml file describing the profile to build")
}

func buildFlags(fs *pflag.FlagSet, f *commandFlags) {
	fs.IntVarP(&f.jobs, "jobs", "j", 0, "CPU cores a recipe may use (default from config)")
	fs.StringVarP(&f.keep, "keep", "k", "", "keep build directories: never, error or always (default from config)")
	fs.IntVar(&f.parallel, "parallel", 0, "packages to build at once (default from config)")
}

func forceFlag(fs *pflag.FlagSet, f *commandFlags) {
	fs.BoolVarP(&f.force, "force", "f", false, "overwrite the target directory")
}

func copyFlag(fs *pflag.FlagSet, f *commandFlags) {
	fs.BoolVar(&f.copy, "copy", false, "copy the profile next to the profile file instead of linking it")
}

func linkFlags(fs *pflag.FlagSet, f *commandFlags) {
	fs.StringVarP(&f.link, "link", "l", string(fsutil.LinkAbsolute), "link action: absolute, relative or copy")
	copyFlag(fs, f)
}

// linkMode returns the link mode selected by --link and --copy.
func (f *commandFlags) linkMode() (fsutil.LinkMode, error) {
	if f.copy {
		return fsutil.LinkCopy, nil
	}
	if f.link == "" {
		return fsutil.LinkAbsolute, nil
	}
	return fsutil.ParseLinkMode(f.link)
}
