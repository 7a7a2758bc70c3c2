// SPDX-License-Identifier: MPL-2.0

package store

import (
	"errors"
	"fmt"

	"github.com/hitbuild/hit/pkg/buildspec"
)

var (
	// ErrBuildFailed is the sentinel error wrapped by BuildFailure.
	ErrBuildFailed = errors.New("build failed")
	// ErrStoreCorrupt is the sentinel error wrapped by CorruptionError.
	ErrStoreCorrupt = errors.New("artifact store corrupt")
	// ErrNotBuilt is returned by Lookup for an artifact that does not exist.
	ErrNotBuilt = errors.New("artifact not built")
)

type (
	// BuildFailure reports a recipe that failed, timed out or was cancelled.
	BuildFailure struct {
		Package    string
		ArtifactID buildspec.ID
		// LogPath is the captured build log. It stays valid whether or not
		// the build directory was kept.
		LogPath string
		// BuildDir is the retained build directory, empty if it was removed.
		BuildDir string
		Err      error
	}

	// CorruptionError reports an artifact directory that exists but was
	// never completely published.
	CorruptionError struct {
		ArtifactID buildspec.ID
		Path       string
	}

	// InvalidKeepPolicyError is returned by ParseKeepPolicy.
	InvalidKeepPolicyError struct {
		Value string
	}
)

// Error implements the error interface.
func (e *BuildFailure) Error() string {
	msg := fmt.Sprintf("build of %s (%s) failed: %v", e.Package, e.ArtifactID, e.Err)
	if e.LogPath != "" {
		msg += "; log: " + e.LogPath
	}
	return msg
}

// Unwrap exposes ErrBuildFailed and the underlying cause.
func (e *BuildFailure) Unwrap() []error { return []error{ErrBuildFailed, e.Err} }

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("artifact %s at %s is incomplete (missing completion marker)", e.ArtifactID, e.Path)
}

// Unwrap returns ErrStoreCorrupt.
func (e *CorruptionError) Unwrap() error { return ErrStoreCorrupt }

// Error implements the error interface.
func (e *InvalidKeepPolicyError) Error() string {
	return fmt.Sprintf("invalid keep policy %q (expected always, never or error)", e.Value)
}
