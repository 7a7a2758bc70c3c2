// SPDX-License-Identifier: MPL-2.0

// Package libcheck audits the shared libraries in a built profile: every
// library a .so file links against must be either a system library or
// resolved from inside the artifact store.
package libcheck

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hitbuild/hit/internal/fsutil"
)

// systemLibs are libraries expected to come from the host.
var systemLibs = []string{
	// linux
	"linux-vdso",
	"linux-gate",

	// libc
	"libc",
	"libm",
	"libutil",
	"libcrypt",
	"libpthread",
	"libdl",
	"librt",
	"libnsl",

	// gcc
	"libstdc++",
	"libgfortran",
	"libquadmath",
	"libgcc_s",

	// X11
	"libX11",
	"libXau",
	"libXext",
	"libxcb",
	"libXdmcp",
}

type (
	// Library is one line of ldd output.
	Library struct {
		Name    string
		Path    string
		Address string
		// Missing is set for "name => not found"; Path and Address are empty.
		Missing bool
	}

	// Finding is a library that resolves outside the store.
	Finding struct {
		// File is the shared object that links against Library.
		File    string
		Library Library
	}

	// Checker runs ldd over a profile tree.
	Checker struct {
		// Ldd is the ldd executable; empty means "ldd" from PATH.
		Ldd string
	}
)

// String formats a library the way ldd reports it.
func (l Library) String() string {
	if l.Missing {
		return l.Name + " => not found"
	}
	return fmt.Sprintf("%s %s %s", l.Name, l.Path, l.Address)
}

func (f Finding) String() string {
	return f.File + ": " + f.Library.String()
}

// IsSystemLib reports whether a library name belongs to the host system.
// The dynamic loader, which ldd lists without a name, counts as one.
func IsSystemLib(name string) bool {
	if name == "" {
		return true
	}
	for _, lib := range systemLibs {
		if strings.HasPrefix(name, lib+".so") {
			return true
		}
	}
	return false
}

// ParseLdd parses the output of ldd. Lines have the forms
// "name => path (address)", "name => not found" and "path (address)"; the
// last yields an empty name.
func ParseLdd(output string) []Library {
	var libs []Library
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var lib Library
		rest := line
		if name, after, ok := strings.Cut(line, "=>"); ok {
			lib.Name = strings.TrimSpace(name)
			rest = strings.TrimSpace(after)
		}
		if rest == "not found" {
			lib.Missing = true
			libs = append(libs, lib)
			continue
		}
		if i := strings.LastIndex(rest, " "); i >= 0 {
			lib.Path = strings.TrimSpace(rest[:i])
			lib.Address = strings.TrimSpace(rest[i:])
		} else {
			lib.Address = rest
		}
		libs = append(libs, lib)
	}
	return libs
}

// Check inspects every *.so* file under profileDir and returns the
// libraries that are neither system libraries nor inside artifactRoot.
// Libraries the loader cannot find are always reported. A symlinked
// profileDir is followed.
func (c *Checker) Check(ctx context.Context, profileDir, artifactRoot string) ([]Finding, error) {
	root, err := filepath.EvalSymlinks(profileDir)
	if err != nil {
		return nil, err
	}
	files, err := sharedObjects(root)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, file := range files {
		out, err := c.ldd(ctx, file)
		if err != nil {
			return findings, err
		}
		for _, lib := range ParseLdd(out) {
			if !lib.Missing && (IsSystemLib(lib.Name) || fsutil.Within(artifactRoot, lib.Path)) {
				continue
			}
			findings = append(findings, Finding{File: file, Library: lib})
		}
	}
	return findings, nil
}

func (c *Checker) ldd(ctx context.Context, file string) (string, error) {
	bin := c.Ldd
	if bin == "" {
		bin = "ldd"
	}
	out, err := exec.CommandContext(ctx, bin, file).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", bin, file, err)
	}
	return string(out), nil
}

// sharedObjects lists files matching *.so* under root, following symlinks
// to regular files the way `find -L` does.
func sharedObjects(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.Contains(d.Name(), ".so") {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if matched, _ := filepath.Match("*.so*", d.Name()); matched {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
