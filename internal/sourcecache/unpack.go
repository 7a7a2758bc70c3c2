// SPDX-License-Identifier: MPL-2.0

package sourcecache

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/hitbuild/hit/internal/fsutil"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ErrUnsafePath is returned for archive entries that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Unpack materializes the cached file at src inside dest. Tar archives,
// optionally gzip or zstd compressed, are extracted with strip leading path
// components removed; the format is detected from the content. Any other
// file is copied to dest/name.
func Unpack(ctx context.Context, src, dest string, strip int, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	r := bufio.NewReader(f)
	head, _ := r.Peek(4)
	var stream io.Reader = r
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		defer zr.Close()
		stream = zr
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		defer zr.Close()
		stream = zr
	}

	br := bufio.NewReaderSize(stream, 1024)
	if isTar(br) {
		return extractTar(ctx, tar.NewReader(br), dest, strip)
	}
	if stream != io.Reader(r) {
		return fmt.Errorf("%s: compressed content is not a tar archive", name)
	}
	return writeFile(filepath.Join(dest, filepath.Base(name)), br, 0o644)
}

// isTar looks for the ustar magic of a POSIX or GNU tar header.
func isTar(r *bufio.Reader) bool {
	block, err := r.Peek(263)
	if err != nil {
		return false
	}
	return bytes.HasPrefix(block[257:], []byte("ustar"))
}

// extractTar writes the entries of tr below dest. All file system access
// goes through an os.Root, and no entry may be placed below a symlink, so a
// link created by an earlier entry cannot redirect a later one.
func extractTar(ctx context.Context, tr *tar.Reader, dest string, strip int) error {
	root, err := os.OpenRoot(dest)
	if err != nil {
		return err
	}
	defer root.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		rel, ok := stripComponents(hdr.Name, strip)
		if !ok {
			continue
		}
		if !fsutil.Within(dest, filepath.Join(dest, filepath.FromSlash(rel))) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}
		if err := checkParents(root, rel); err != nil {
			return fmt.Errorf("%w: %s", err, hdr.Name)
		}
		name := filepath.FromSlash(rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeRootFile(root, name, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			linkTarget := filepath.Join(dest, filepath.Dir(name), filepath.FromSlash(hdr.Linkname))
			if path.IsAbs(hdr.Linkname) || !fsutil.Within(dest, linkTarget) {
				return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, hdr.Name, hdr.Linkname)
			}
			if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
				return err
			}
			if _, err := root.Lstat(name); err == nil {
				if err := root.Remove(name); err != nil {
					return err
				}
			}
			if err := root.Symlink(hdr.Linkname, name); err != nil {
				return err
			}
		case tar.TypeLink:
			linkRel, ok := stripComponents(hdr.Linkname, strip)
			if !ok || !fsutil.Within(dest, filepath.Join(dest, filepath.FromSlash(linkRel))) {
				return fmt.Errorf("%w: hard link %s -> %s", ErrUnsafePath, hdr.Name, hdr.Linkname)
			}
			if err := checkParents(root, linkRel); err != nil {
				return fmt.Errorf("%w: hard link %s -> %s", err, hdr.Name, hdr.Linkname)
			}
			if err := root.Link(filepath.FromSlash(linkRel), name); err != nil {
				return err
			}
		default:
			// Devices, fifos and pax global headers have no place in a source tree.
		}
	}
}

// checkParents returns ErrUnsafePath when a directory on the way to the
// slash-separated rel is a symlink.
func checkParents(root *os.Root, rel string) error {
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		fi, err := root.Lstat(filepath.Join(parts[:i]...))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s is a symlink", ErrUnsafePath, path.Join(parts[:i]...))
		}
	}
	return nil
}

func writeRootFile(root *os.Root, name string, r io.Reader, perm os.FileMode) (err error) {
	if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(f, r)
	return err
}

// stripComponents removes the first n path elements of name. It reports
// false when nothing is left.
func stripComponents(name string, n int) (string, bool) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if clean == "." {
		return "", false
	}
	parts := strings.Split(clean, "/")
	if len(parts) <= n {
		return "", false
	}
	return path.Join(parts[n:]...), true
}

func writeFile(target string, r io.Reader, perm os.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(f, r)
	return err
}
