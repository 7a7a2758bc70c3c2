// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/hitbuild/hit/pkg/buildspec"
	"github.com/hitbuild/hit/pkg/profile"
)

// RenderScript returns the script written to _hit/build.sh. It depends only
// on its arguments.
func RenderScript(spec buildspec.BuildSpec, deps []Dependency) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "export PKG=%s\n", quote(spec.Name()))
	fmt.Fprintf(&b, "export ARTIFACT_ID=%s\n", quote(spec.ArtifactID().String()))
	for _, dep := range deps {
		fmt.Fprintf(&b, "export %s=%s\n", profile.EnvName(dep.Name), quote(dep.Dir))
	}
	if build := spec.Doc().Build; build != "" {
		b.WriteString("\n")
		b.WriteString(build)
		if !strings.HasSuffix(build, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Environ returns the environment of a job: the host environment overlaid
// with the build variables, and PATH prefixed with each dependency's bin.
func Environ(job *Job) []string {
	host := job.HostEnv
	if host == nil {
		host = os.Environ()
	}

	vars := map[string]string{
		"ARTIFACT":    job.ArtifactDir,
		"PREFIX":      job.PrefixDir,
		"BUILD":       job.BuildDir,
		"JOBS":        strconv.Itoa(max(job.Jobs, 1)),
		"PKG":         job.Spec.Name(),
		"ARTIFACT_ID": job.Spec.ArtifactID().String(),
	}
	var bins []string
	for _, dep := range job.Dependencies {
		vars[profile.EnvName(dep.Name)] = dep.Dir
		bins = append(bins, filepath.Join(dep.Dir, "bin"))
	}

	env := make([]string, 0, len(host)+len(vars)+1)
	hostPath := ""
	for _, kv := range host {
		key, value, _ := strings.Cut(kv, "=")
		if key == "PATH" {
			hostPath = value
			continue
		}
		if _, overridden := vars[key]; overridden {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}

	if hostPath != "" {
		bins = append(bins, hostPath)
	}
	if len(bins) > 0 {
		env = append(env, "PATH="+strings.Join(bins, string(os.PathListSeparator)))
	}
	return env
}

// quote single-quotes s for a POSIX shell.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
