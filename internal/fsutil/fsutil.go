// SPDX-License-Identifier: MPL-2.0

// Package fsutil holds the filesystem primitives used to compose profiles:
// linking or copying artifact trees, atomic symlink replacement and target
// directory checks.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// LinkAbsolute links each file with an absolute symlink.
	LinkAbsolute LinkMode = "absolute"
	// LinkRelative links each file with a symlink relative to its location.
	LinkRelative LinkMode = "relative"
	// LinkCopy copies each file.
	LinkCopy LinkMode = "copy"
)

// ErrTargetExists is the sentinel error wrapped by TargetExistsError.
var ErrTargetExists = errors.New("target already exists")

type (
	// LinkMode selects how LinkTree materializes files.
	LinkMode string

	// TargetExistsError is returned when a destination already exists and the
	// caller did not ask for it to be replaced.
	TargetExistsError struct {
		Path string
	}

	// InvalidLinkModeError is returned by ParseLinkMode.
	InvalidLinkModeError struct {
		Value string
	}

	// SkipFunc reports whether the entry at rel (slash separated, relative to
	// the source root) should be left out.
	SkipFunc func(rel string) bool
)

// Error implements the error interface.
func (e *TargetExistsError) Error() string {
	return fmt.Sprintf("%s already exists (use --force to replace it)", e.Path)
}

// Unwrap returns ErrTargetExists.
func (e *TargetExistsError) Unwrap() error { return ErrTargetExists }

// Error implements the error interface.
func (e *InvalidLinkModeError) Error() string {
	return fmt.Sprintf("invalid link mode %q (expected absolute, relative or copy)", e.Value)
}

// ParseLinkMode validates a link mode name.
func ParseLinkMode(s string) (LinkMode, error) {
	switch m := LinkMode(s); m {
	case LinkAbsolute, LinkRelative, LinkCopy:
		return m, nil
	default:
		return "", &InvalidLinkModeError{Value: s}
	}
}

// String implements fmt.Stringer.
func (m LinkMode) String() string { return string(m) }

// EnsureTarget makes sure path does not exist so a caller can create it.
// Without force an existing path is a *TargetExistsError; with force it is
// removed. The parent directory is created if missing.
func EnsureTarget(path string, force bool) error {
	if _, err := os.Lstat(path); err == nil {
		if !force {
			return &TargetExistsError{Path: path}
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// AtomicSymlink points link at target, replacing an existing symlink in a
// single rename so readers never observe a missing link.
func AtomicSymlink(target, link string) error {
	tmp := filepath.Join(filepath.Dir(link), "."+filepath.Base(link)+".tmp-"+uuid.NewString()[:8])
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", link, err)
	}
	return nil
}

// LinkTree recreates the tree under src inside dst. Directories are created
// as real directories so several trees can be merged into one dst; files are
// linked or copied according to mode, and symlinks are copied as symlinks.
// Files that already exist in dst are left untouched and returned as
// conflicts, so the first tree linked into dst wins.
func LinkTree(src, dst string, mode LinkMode, skip SkipFunc) (conflicts []string, err error) {
	if src, err = filepath.Abs(src); err != nil {
		return nil, err
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, err
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return err
		}
		if skip != nil && skip(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		out := filepath.Join(dst, rel)
		if d.IsDir() {
			return mkdirMerge(out)
		}
		if _, err := os.Lstat(out); err == nil {
			conflicts = append(conflicts, filepath.ToSlash(rel))
			return nil
		}
		return placeFile(path, out, d, mode)
	})
	return conflicts, err
}

// CopyTree copies src into dst, which must not contain any of src's files.
func CopyTree(src, dst string) error {
	conflicts, err := LinkTree(src, dst, LinkCopy, nil)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &TargetExistsError{Path: filepath.Join(dst, conflicts[0])}
	}
	return nil
}

func mkdirMerge(dir string) error {
	info, err := os.Lstat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return fmt.Errorf("cannot merge directory into non-directory %s", dir)
	case errors.Is(err, fs.ErrNotExist):
		return os.Mkdir(dir, 0o755)
	default:
		return err
	}
}

func placeFile(path, out string, d fs.DirEntry, mode LinkMode) error {
	if d.Type()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		return os.Symlink(target, out)
	}

	switch mode {
	case LinkAbsolute:
		return os.Symlink(path, out)
	case LinkRelative:
		target, err := filepath.Rel(filepath.Dir(out), path)
		if err != nil {
			return err
		}
		return os.Symlink(target, out)
	case LinkCopy:
		return copyFile(path, out)
	default:
		return &InvalidLinkModeError{Value: string(mode)}
	}
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

// Within reports whether path lies inside root after cleaning both.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
