// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hitbuild/hit/internal/issue"
	"github.com/hitbuild/hit/internal/testutil"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, path, err := loadWithOptions(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("load error = %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want none", path)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("config = %+v, want defaults", cfg)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFile(t, FilePath(dir), `
build: {
	jobs: 4
	keep: "error"
	timeout: "90s"
}
store: artifact_root: "/srv/hit/bld"
`)

	cfg, path, err := loadWithOptions(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("load error = %v", err)
	}
	if path != FilePath(dir) {
		t.Errorf("resolved path = %q", path)
	}
	if cfg.Build.Jobs != 4 || cfg.Build.Keep != KeepError {
		t.Errorf("build = %+v", cfg.Build)
	}
	if d, _ := cfg.Build.Timeout.Duration(); d != 90*time.Second {
		t.Errorf("timeout = %v", d)
	}
	if cfg.Store.ArtifactRoot != "/srv/hit/bld" {
		t.Errorf("artifact_root = %q", cfg.Store.ArtifactRoot)
	}
	if cfg.Store.BuildRoot != DefaultConfig().Store.BuildRoot || cfg.Build.Parallel != 1 {
		t.Error("unset fields lost their defaults")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad enum", `build: keep: "sometimes"`, "build.keep"},
		{"bad bound", `build: jobs: 0`, "build.jobs"},
		{"unknown field", `build: turbo: true`, "turbo"},
		{"syntax", `build: {`, "config.cue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			testutil.WriteFile(t, FilePath(dir), tt.content)

			_, _, err := loadWithOptions(t.Context(), LoadOptions{ConfigDirPath: dir})
			if err == nil {
				t.Fatal("load succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) || ae.Issue != issue.ConfigLoadFailedId {
				t.Errorf("error should be an actionable config error, got %T", err)
			}
		})
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.cue")
	_, _, err := loadWithOptions(t.Context(), LoadOptions{ConfigFilePath: missing})
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v, want config file not found", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HIT_BUILD_JOBS", "8")
	t.Setenv("HIT_STORE_BUILD_ROOT", "/scratch/hit")
	t.Setenv("HIT_UI_VERBOSE", "true")

	dir := t.TempDir()
	testutil.WriteFile(t, FilePath(dir), `build: jobs: 2`)

	cfg, _, err := loadWithOptions(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("load error = %v", err)
	}
	if cfg.Build.Jobs != 8 {
		t.Errorf("jobs = %d, want the environment to win", cfg.Build.Jobs)
	}
	if cfg.Store.BuildRoot != "/scratch/hit" || !cfg.UI.Verbose {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("HIT_BUILD_KEEP", "sometimes")

	_, _, err := loadWithOptions(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestGenerateCUE_LoadsBack(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Build.Jobs = 6
	cfg.Build.Runtime = RuntimeNative
	cfg.Log.Level = LogLevelDebug

	dir := t.TempDir()
	testutil.WriteFile(t, FilePath(dir), GenerateCUE(cfg))

	got, _, err := loadWithOptions(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("load error = %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("loaded %+v, want %+v", got, cfg)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "hit")
	path, err := CreateDefaultConfig(dir)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if path != FilePath(dir) || !testutil.Exists(t, path) {
		t.Fatalf("config not written at %s", path)
	}

	// An existing file is left alone.
	testutil.WriteFile(t, path, "build: jobs: 3\n")
	if _, err := CreateDefaultConfig(dir); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ReadFile(t, path); got != "build: jobs: 3\n" {
		t.Errorf("existing config overwritten: %q", got)
	}

	resolved, err := Resolve(LoadOptions{ConfigDirPath: dir})
	if err != nil || resolved != path {
		t.Errorf("Resolve() = %q, %v", resolved, err)
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	cfg, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Build.Keep != KeepNever {
		t.Errorf("keep = %q", cfg.Build.Keep)
	}
}

func TestStorePaths(t *testing.T) {
	home := t.TempDir()
	testutil.SetHomeDir(t, home)

	cfg := DefaultConfig()
	cfg.Store.SourceCache = "/var/cache/hit"
	bld, tmp, src, err := cfg.StorePaths()
	if err != nil {
		t.Fatal(err)
	}
	if bld != filepath.Join(home, ".hit", "bld") || tmp != filepath.Join(home, ".hit", "tmp") {
		t.Errorf("StorePaths() = %q, %q", bld, tmp)
	}
	if src != "/var/cache/hit" {
		t.Errorf("source cache = %q", src)
	}
}

// TestConfigDir_Override changes package state, so it does not run in parallel.
func TestConfigDir_Override(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "hit")
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if got != dir {
		t.Errorf("ConfigDir() = %q, want %q", got, dir)
	}

	path, err := CreateDefaultConfig("")
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if path != FilePath(dir) {
		t.Errorf("CreateDefaultConfig() = %q, want %q", path, FilePath(dir))
	}
	if !testutil.Exists(t, path) {
		t.Errorf("%s was not written", path)
	}
}
