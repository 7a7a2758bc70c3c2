// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/hitbuild/hit/internal/config"
)

func runConfigShow(ctx context.Context, app *App, _ *commandFlags, _ []string) error {
	opts := app.loadOptions()
	cfg, err := app.Config.Load(ctx, opts)
	if err != nil {
		return err
	}
	path, err := config.Resolve(opts)
	if err != nil {
		return err
	}

	key := PathStyle.Render
	value := SuccessStyle.Render

	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)
	if path == "" {
		app.printf("%s: %s\n\n", key("Config file"), SubtitleStyle.Render("(using defaults)"))
	} else {
		app.printf("%s: %s\n\n", key("Config file"), path)
	}

	app.printf("%s:\n", key("store"))
	app.printf("  artifact_root: %s\n", value(cfg.Store.ArtifactRoot.String()))
	app.printf("  build_root: %s\n", value(cfg.Store.BuildRoot.String()))
	app.printf("  source_cache: %s\n", value(cfg.Store.SourceCache.String()))

	timeout := cfg.Build.Timeout.String()
	if timeout == "" {
		timeout = "none"
	}
	app.printf("\n%s:\n", key("build"))
	app.printf("  jobs: %s\n", value(fmt.Sprint(cfg.Build.Jobs)))
	app.printf("  keep: %s\n", value(cfg.Build.Keep.String()))
	app.printf("  parallel: %s\n", value(fmt.Sprint(cfg.Build.Parallel)))
	app.printf("  runtime: %s\n", value(cfg.Build.Runtime.String()))
	app.printf("  timeout: %s\n", value(timeout))

	app.printf("\n%s:\n", key("ui"))
	app.printf("  color_scheme: %s\n", value(cfg.UI.ColorScheme.String()))
	app.printf("  verbose: %s\n", value(fmt.Sprint(cfg.UI.Verbose)))

	app.printf("\n%s:\n", key("log"))
	app.printf("  level: %s\n", value(cfg.Log.Level.String()))
	return nil
}

func runConfigPath(_ context.Context, app *App, _ *commandFlags, _ []string) error {
	if app.flags.configPath != "" {
		app.printf("Config file: %s\n", app.flags.configPath)
		return nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	app.printf("Config directory: %s\n", dir)
	app.printf("Config file: %s\n", config.FilePath(dir))
	return nil
}

func runConfigInit(_ context.Context, app *App, _ *commandFlags, _ []string) error {
	path, err := config.CreateDefaultConfig("")
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	app.printf("%s Configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func runConfigDump(ctx context.Context, app *App, _ *commandFlags, _ []string) error {
	cfg, err := app.Config.Load(ctx, app.loadOptions())
	if err != nil {
		return err
	}
	fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
	return nil
}
