// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hitbuild/hit/internal/builder"
	"github.com/hitbuild/hit/internal/config"
	"github.com/hitbuild/hit/internal/fsutil"
	"github.com/hitbuild/hit/internal/recipe"
	"github.com/hitbuild/hit/internal/sourcecache"
	"github.com/hitbuild/hit/internal/store"
	"github.com/hitbuild/hit/pkg/profile"
)

type (
	// App is the composition root of the CLI. Command handlers receive it
	// and build every service they need through it.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer
		flags  rootFlags
		// colorScheme is the configured ui.color_scheme, recorded once the
		// configuration loads so error pages can be styled to match.
		colorScheme config.ColorScheme
	}

	// Dependencies are the injection points of NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	// session holds the services of one command invocation: the loaded
	// configuration, the artifact store and, for profile commands, the
	// builder.
	session struct {
		cfg     *config.Config
		logger  *slog.Logger
		store   *store.Store
		profile *profile.Profile
		builder *builder.Builder
	}
)

// NewApp creates an App, filling unset dependencies with defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// issueStyle is the glamour style for issue pages. The color schemes share
// their names with glamour's standard styles; before the configuration has
// loaded the default scheme applies.
func (a *App) issueStyle() string {
	if a.colorScheme == "" {
		return config.DefaultConfig().UI.ColorScheme.String()
	}
	return a.colorScheme.String()
}

func (a *App) loadOptions() config.LoadOptions {
	return config.LoadOptions{ConfigFilePath: a.flags.configPath}
}

// openStore loads the configuration and wires the artifact store, the
// source cache and the recipe runners it describes.
func (a *App) openStore(ctx context.Context) (*session, error) {
	cfg, err := a.Config.Load(ctx, a.loadOptions())
	if err != nil {
		return nil, err
	}
	a.colorScheme = cfg.UI.ColorScheme
	verbose := a.flags.verbose || cfg.UI.Verbose
	logger := newLogger(a.stderr, cfg.Log.Level, verbose)
	slog.SetDefault(logger)

	artifactRoot, buildRoot, sourceRoot, err := cfg.StorePaths()
	if err != nil {
		return nil, err
	}
	runner, err := recipe.NewRunner(string(cfg.Build.Runtime))
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Build.Timeout.Duration()
	if err != nil {
		return nil, err
	}

	st, err := store.New(store.Options{
		ArtifactRoot: artifactRoot,
		BuildRoot:    buildRoot,
		Sources:      sourcecache.New(sourceRoot, sourcecache.WithLogger(logger)),
		Runner: &recipe.Mux{
			Package: runner,
			Profile: &recipe.ComposeRunner{Mode: fsutil.LinkAbsolute, Logger: logger},
		},
		Timeout: timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, store: st}, nil
}

// openProfile is openStore plus the profile at path and its builder.
func (a *App) openProfile(ctx context.Context, path string) (*session, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	p, err := profile.Load(abs)
	if err != nil {
		return nil, err
	}
	b, err := builder.New(builder.Options{Logger: s.logger, Store: s.store, Profile: p})
	if err != nil {
		return nil, err
	}
	s.profile = p
	s.builder = b
	return s, nil
}

// buildOptions merges command-line overrides over the configured defaults.
func (a *App) buildOptions(s *session, f *commandFlags) (builder.BuildOptions, error) {
	opts := builder.BuildOptions{
		Jobs:     s.cfg.Build.Jobs,
		Parallel: s.cfg.Build.Parallel,
	}
	if f.jobs > 0 {
		opts.Jobs = f.jobs
	}
	if f.parallel > 0 {
		opts.Parallel = f.parallel
	}

	keep := string(s.cfg.Build.Keep)
	if f.keep != "" {
		keep = f.keep
	}
	policy, err := store.ParseKeepPolicy(keep)
	if err != nil {
		return opts, err
	}
	opts.Keep = policy

	if a.flags.verbose || s.cfg.UI.Verbose {
		opts.Output = a.stderr
	}
	return opts, nil
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}
