// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"testing"
)

func TestSetHomeDir(t *testing.T) {
	key := "HOME"
	if runtime.GOOS == "windows" {
		key = "USERPROFILE"
	}

	tmpDir := t.TempDir()
	original, had := os.LookupEnv(key)

	cleanup := SetHomeDir(t, tmpDir)
	if got := os.Getenv(key); got != tmpDir {
		t.Errorf("%s = %q, want %q", key, got, tmpDir)
	}

	cleanup()
	got, has := os.LookupEnv(key)
	if has != had || got != original {
		t.Errorf("after cleanup %s = %q (set=%v), want %q (set=%v)", key, got, has, original, had)
	}
}

func TestSourceKey(t *testing.T) {
	t.Parallel()

	const want = "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := SourceKey(nil); got != want {
		t.Errorf("SourceKey(nil) = %q, want %q", got, want)
	}
}

func TestMustSetenv(t *testing.T) {
	const key = "HIT_TESTUTIL_MUSTSETENV"

	restore := MustSetenv(t, key, "first")
	if got := os.Getenv(key); got != "first" {
		t.Errorf("%s = %q, want first", key, got)
	}
	restoreInner := MustSetenv(t, key, "second")
	restoreInner()
	if got := os.Getenv(key); got != "first" {
		t.Errorf("after inner restore %s = %q, want first", key, got)
	}
	restore()
	if _, ok := os.LookupEnv(key); ok {
		t.Errorf("%s still set after restore", key)
	}
}
