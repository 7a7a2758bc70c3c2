// SPDX-License-Identifier: MPL-2.0

package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitbuild/hit/internal/fsutil"
	"github.com/hitbuild/hit/internal/recipe"
	"github.com/hitbuild/hit/internal/sourcecache"
	"github.com/hitbuild/hit/internal/testutil"
	"github.com/hitbuild/hit/pkg/buildspec"
	"github.com/hitbuild/hit/pkg/profile"
)

// fakeRunner writes a single file into the staging directory, or fails.
type fakeRunner struct {
	runs  atomic.Int32
	fail  error
	delay time.Duration
}

func (r *fakeRunner) Name() string { return "fake" }

func (r *fakeRunner) Run(ctx context.Context, job *recipe.Job) error {
	r.runs.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if job.Stdout != nil {
		_, _ = job.Stdout.Write([]byte("building " + job.Spec.Name() + "\n"))
	}
	if r.fail != nil {
		return r.fail
	}
	return os.WriteFile(filepath.Join(job.ArtifactDir, "out.txt"), []byte(job.Spec.Name()), 0o644)
}

func newTestStore(t *testing.T, runner recipe.Runner, timeout time.Duration) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(Options{
		ArtifactRoot: filepath.Join(root, "bld"),
		BuildRoot:    filepath.Join(root, "tmp"),
		Sources:      sourcecache.New(filepath.Join(root, "src")),
		Runner:       runner,
		Timeout:      timeout,
		Clock:        testutil.NewFakeClock(time.Time{}),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testSpec(t *testing.T, name, build string) buildspec.BuildSpec {
	t.Helper()
	spec, err := buildspec.Make(profile.Package{Name: name, Build: build}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func buildDirs(t *testing.T, s *Store) []string {
	t.Helper()
	entries, err := os.ReadDir(s.BuildRoot())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != "logs" {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

func TestBuild_Publishes(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := newTestStore(t, runner, 0)
	spec := testSpec(t, "zlib", "true")

	if s.IsBuilt(spec) {
		t.Fatal("IsBuilt() = true before build")
	}
	var out bytes.Buffer
	dir, err := s.Build(t.Context(), spec, BuildOptions{Jobs: 2, Keep: KeepNever, Output: &out})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if dir != s.ArtifactDir(spec.ArtifactID()) {
		t.Errorf("Build() = %q, want %q", dir, s.ArtifactDir(spec.ArtifactID()))
	}
	if !s.IsBuilt(spec) {
		t.Error("IsBuilt() = false after build")
	}
	if got := testutil.ReadFile(t, filepath.Join(dir, "out.txt")); got != "zlib" {
		t.Errorf("out.txt = %q", got)
	}
	if got := testutil.ReadFile(t, filepath.Join(dir, MetaDir, LogFile)); got != "building zlib\n" {
		t.Errorf("build.log = %q", got)
	}
	if !strings.Contains(out.String(), "building zlib") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(testutil.ReadFile(t, filepath.Join(dir, MetaDir, ScriptFile)), "set -e") {
		t.Error("build.sh not recorded")
	}

	meta, err := s.Metadata(spec)
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if meta.ID != spec.ArtifactID() || meta.Runner != "fake" || meta.Jobs != 2 {
		t.Errorf("Metadata() = %+v", meta)
	}
	if dirs := buildDirs(t, s); len(dirs) != 0 {
		t.Errorf("build dirs left behind: %v", dirs)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := newTestStore(t, runner, 0)
	spec := testSpec(t, "zlib", "true")

	first, err := s.Build(t.Context(), spec, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Build(t.Context(), spec, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("second Build() = %q, want %q", second, first)
	}
	if n := runner.runs.Load(); n != 1 {
		t.Errorf("runner ran %d times, want 1", n)
	}
}

func TestBuild_ConcurrentSameSpec(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{delay: 20 * time.Millisecond}
	s := newTestStore(t, runner, 0)
	spec := testSpec(t, "zlib", "true")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Go(func() {
			_, errs[i] = s.Build(t.Context(), spec, BuildOptions{})
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Build() #%d error = %v", i, err)
		}
	}
	if n := runner.runs.Load(); n != 1 {
		t.Errorf("runner ran %d times, want 1", n)
	}
}

func TestBuild_KeepPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		keep     KeepPolicy
		fail     bool
		wantKept bool
	}{
		{KeepNever, false, false},
		{KeepNever, true, false},
		{KeepError, false, false},
		{KeepError, true, true},
		{KeepAlways, false, true},
		{KeepAlways, true, true},
	}

	for _, tt := range tests {
		name := string(tt.keep)
		if tt.fail {
			name += "/failure"
		} else {
			name += "/success"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner := &fakeRunner{}
			if tt.fail {
				runner.fail = errors.New("boom")
			}
			s := newTestStore(t, runner, 0)
			spec := testSpec(t, "zlib", "true")

			_, err := s.Build(t.Context(), spec, BuildOptions{Keep: tt.keep})
			if tt.fail != (err != nil) {
				t.Fatalf("Build() error = %v, want failure %v", err, tt.fail)
			}

			dirs := buildDirs(t, s)
			if kept := len(dirs) == 1; kept != tt.wantKept {
				t.Errorf("build dirs = %v, want kept %v", dirs, tt.wantKept)
			}
			if len(dirs) == 1 && !strings.HasPrefix(dirs[0], spec.ShortID()+"-") {
				t.Errorf("build dir %q does not start with the short id", dirs[0])
			}

			if !tt.fail {
				return
			}
			var failure *BuildFailure
			if !errors.As(err, &failure) {
				t.Fatalf("error %T is not a *BuildFailure", err)
			}
			if !errors.Is(err, ErrBuildFailed) {
				t.Error("errors.Is(err, ErrBuildFailed) = false")
			}
			if failure.ArtifactID != spec.ArtifactID() || !strings.Contains(err.Error(), "zlib") {
				t.Errorf("failure = %v", err)
			}
			if got := testutil.ReadFile(t, failure.LogPath); !strings.Contains(got, "building zlib") {
				t.Errorf("log %s = %q", failure.LogPath, got)
			}
			if (failure.BuildDir != "") != tt.wantKept {
				t.Errorf("BuildDir = %q, want kept %v", failure.BuildDir, tt.wantKept)
			}
			if s.IsBuilt(spec) {
				t.Error("failed build is reported as built")
			}
			assertNoStaging(t, s, spec)
		})
	}
}

func assertNoStaging(t *testing.T, s *Store, spec buildspec.BuildSpec) {
	t.Helper()
	name, _ := spec.ArtifactID().Split()
	matches, err := filepath.Glob(filepath.Join(s.ArtifactRoot(), name, ".staging-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("staging dirs left behind: %v", matches)
	}
}

func TestBuild_Timeout(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{delay: time.Minute}
	s := newTestStore(t, runner, 20*time.Millisecond)
	spec := testSpec(t, "slow", "sleep 60")

	_, err := s.Build(t.Context(), spec, BuildOptions{Keep: KeepError})
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("Build() error = %v, want ErrBuildFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Build() error = %v, want DeadlineExceeded cause", err)
	}
	if len(buildDirs(t, s)) != 1 {
		t.Error("timed out build should keep its build dir under KeepError")
	}
	assertNoStaging(t, s, spec)
}

func TestBuild_RecoversFromCrash(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := newTestStore(t, runner, 0)
	spec := testSpec(t, "zlib", "true")
	id := spec.ArtifactID()
	name, hash := id.Split()

	// A crash mid-build leaves a staging dir and, after a crash during an
	// external copy, a final dir without its marker.
	stale := filepath.Join(s.ArtifactRoot(), name, ".staging-"+hash+"-dead")
	testutil.WriteFile(t, filepath.Join(stale, "partial"), "x")
	testutil.WriteFile(t, filepath.Join(s.ArtifactDir(id), "half.txt"), "x")

	if s.IsBuilt(spec) {
		t.Fatal("IsBuilt() = true for a directory without marker")
	}
	_, err := s.Lookup(spec)
	var corrupt *CorruptionError
	if !errors.As(err, &corrupt) || !errors.Is(err, ErrStoreCorrupt) {
		t.Fatalf("Lookup() error = %v, want *CorruptionError", err)
	}

	dir, err := s.Build(t.Context(), spec, BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if testutil.Exists(t, filepath.Join(dir, "half.txt")) {
		t.Error("incomplete content leaked into the published artifact")
	}
	if testutil.Exists(t, stale) {
		t.Error("stale staging dir not removed")
	}
	quarantined, _ := filepath.Glob(filepath.Join(s.ArtifactRoot(), name, ".corrupt-"+hash+"-*"))
	if len(quarantined) != 1 {
		t.Errorf("quarantined dirs = %v, want one", quarantined)
	}
}

func TestLookup_NotBuilt(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeRunner{}, 0)
	if _, err := s.Lookup(testSpec(t, "zlib", "true")); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("Lookup() error = %v, want ErrNotBuilt", err)
	}
}

func TestBuild_MissingDependency(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := newTestStore(t, runner, 0)
	spec, err := buildspec.Make(profile.Package{Name: "libpng", Dependencies: []string{"zlib"}, Build: "true"},
		map[string]buildspec.ID{"zlib": "zlib/aaaa"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Build(t.Context(), spec, BuildOptions{}); err == nil {
		t.Fatal("Build() with an unbuilt dependency succeeded")
	}
	if n := runner.runs.Load(); n != 0 {
		t.Errorf("runner ran %d times, want 0", n)
	}
}

func TestBuild_VirtualRunnerWithSources(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	content := "hello from source\n"
	srcFile := filepath.Join(srcDir, "greeting.txt")
	testutil.WriteFile(t, srcFile, content)

	s := newTestStore(t, &recipe.VirtualRunner{}, 0)
	pkg := profile.Package{
		Name:    "greeting",
		Sources: []profile.Source{{URL: srcFile, Key: testutil.SourceKey([]byte(content)), Target: "src"}},
		Build:   `mkdir -p "$ARTIFACT/share" && cp src/greeting.txt "$ARTIFACT/share/"`,
	}
	spec, err := buildspec.Make(pkg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	dir, err := s.Build(t.Context(), spec, BuildOptions{Sources: pkg.Sources})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := testutil.ReadFile(t, filepath.Join(dir, "share", "greeting.txt")); got != content {
		t.Errorf("installed file = %q", got)
	}
}

func TestBuild_SourceFailureHonorsKeepPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		keep     KeepPolicy
		wantKept bool
	}{
		{KeepNever, false},
		{KeepError, true},
		{KeepAlways, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.keep), func(t *testing.T) {
			t.Parallel()

			runner := &fakeRunner{}
			s := newTestStore(t, runner, 0)
			missing := filepath.Join(t.TempDir(), "gone.tar.gz")
			pkg := profile.Package{
				Name:    "zlib",
				Sources: []profile.Source{{URL: missing, Key: testutil.SourceKey([]byte("gone")), Target: "src"}},
				Build:   "make",
			}
			spec, err := buildspec.Make(pkg, nil, nil)
			if err != nil {
				t.Fatal(err)
			}

			_, err = s.Build(t.Context(), spec, BuildOptions{Keep: tt.keep, Sources: pkg.Sources})
			var failure *BuildFailure
			if !errors.As(err, &failure) {
				t.Fatalf("Build() error = %v, want *BuildFailure", err)
			}
			if n := runner.runs.Load(); n != 0 {
				t.Errorf("runner ran %d times, want 0", n)
			}
			if failure.LogPath == "" {
				t.Fatal("failure has no log path")
			}
			if got := testutil.ReadFile(t, failure.LogPath); !strings.Contains(got, "gone.tar.gz") {
				t.Errorf("log %s = %q, want the fetch error", failure.LogPath, got)
			}

			dirs := buildDirs(t, s)
			if tt.wantKept {
				if len(dirs) != 1 || failure.BuildDir != filepath.Join(s.BuildRoot(), dirs[0]) {
					t.Errorf("build dirs = %v, BuildDir = %q, want one retained dir", dirs, failure.BuildDir)
				}
				return
			}
			if failure.BuildDir != "" {
				t.Errorf("BuildDir = %q, want empty under %s", failure.BuildDir, tt.keep)
			}
			if len(dirs) != 0 {
				t.Errorf("build dirs %v left behind", dirs)
			}
		})
	}
}

func TestPrepareBuildDir(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	content := "int main() { return 0; }\n"
	srcFile := filepath.Join(srcDir, "main.c")
	testutil.WriteFile(t, srcFile, content)

	runner := &fakeRunner{}
	s := newTestStore(t, runner, 0)
	sources := []profile.Source{{URL: srcFile, Key: testutil.SourceKey([]byte(content)), Target: "."}}
	spec, err := buildspec.Make(profile.Package{Name: "hello", Sources: sources, Build: "cc main.c"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(t.TempDir(), "work")
	if err := s.PrepareBuildDir(t.Context(), spec, sources, target); err != nil {
		t.Fatalf("PrepareBuildDir() error = %v", err)
	}
	if got := testutil.ReadFile(t, filepath.Join(target, "main.c")); got != content {
		t.Errorf("main.c = %q", got)
	}
	if got := testutil.ReadFile(t, filepath.Join(target, MetaDir, ScriptFile)); got != s.Script(spec) {
		t.Errorf("build.sh = %q", got)
	}
	if n := runner.runs.Load(); n != 0 {
		t.Errorf("runner ran %d times, want 0", n)
	}

	err = s.PrepareBuildDir(t.Context(), spec, sources, target)
	if !errors.Is(err, fsutil.ErrTargetExists) {
		t.Errorf("second PrepareBuildDir() error = %v, want ErrTargetExists", err)
	}
}

func TestParseKeepPolicy(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"always", "never", "error"} {
		if p, err := ParseKeepPolicy(s); err != nil || p.String() != s {
			t.Errorf("ParseKeepPolicy(%q) = %q, %v", s, p, err)
		}
	}
	var invalid *InvalidKeepPolicyError
	if _, err := ParseKeepPolicy("sometimes"); !errors.As(err, &invalid) {
		t.Errorf("ParseKeepPolicy(sometimes) error = %v", err)
	}
}
