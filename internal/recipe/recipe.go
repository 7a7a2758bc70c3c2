// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"context"
	"fmt"
	"io"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/hitbuild/hit/pkg/buildspec"
)

const (
	// RuntimeVirtual names the embedded shell interpreter.
	RuntimeVirtual = "virtual"
	// RuntimeNative names the host shell.
	RuntimeNative = "native"
)

type (
	// Runner executes one build job.
	Runner interface {
		Name() string
		Run(ctx context.Context, job *Job) error
	}

	// Dependency is a resolved dependency artifact.
	Dependency struct {
		Name string
		ID   buildspec.ID
		Dir  string
	}

	// Job is everything a runner needs to realize one build spec.
	Job struct {
		Spec buildspec.BuildSpec
		// Script is the rendered script (see RenderScript).
		Script string
		// BuildDir is the private working directory ($BUILD).
		BuildDir string
		// ArtifactDir is the staging install directory ($ARTIFACT).
		ArtifactDir string
		// PrefixDir is the final artifact directory ($PREFIX).
		PrefixDir string
		// Jobs is the parallelism hint passed to the recipe ($JOBS).
		Jobs int
		// Dependencies are in composition order for a profile and in
		// canonical order otherwise.
		Dependencies []Dependency
		// HostEnv is the inherited environment; nil means os.Environ().
		HostEnv []string

		Stdout io.Writer
		Stderr io.Writer
	}

	// Mux dispatches package jobs to Package and profile jobs to Profile.
	Mux struct {
		Package Runner
		Profile Runner
	}
)

// Name returns the name of the package runner.
func (m *Mux) Name() string { return m.Package.Name() }

// Run implements Runner.
func (m *Mux) Run(ctx context.Context, job *Job) error {
	switch kind := job.Spec.Kind(); kind {
	case buildspec.KindPackage:
		return m.Package.Run(ctx, job)
	case buildspec.KindProfile:
		return m.Profile.Run(ctx, job)
	default:
		return fmt.Errorf("no runner for build spec kind %q", kind)
	}
}

// NewRunner returns the runner for a package recipe runtime name.
func NewRunner(name string) (Runner, error) {
	switch name {
	case RuntimeVirtual, "":
		return &VirtualRunner{}, nil
	case RuntimeNative:
		return &NativeRunner{}, nil
	default:
		return nil, fmt.Errorf("unknown recipe runtime %q (expected virtual or native)", name)
	}
}

// Validate reports a syntax error in script.
func Validate(script string) error {
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), "build.sh"); err != nil {
		return fmt.Errorf("script syntax error: %w", err)
	}
	return nil
}

func (j *Job) streams() (stdout, stderr io.Writer) {
	stdout, stderr = j.Stdout, j.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = stdout
	}
	return stdout, stderr
}
