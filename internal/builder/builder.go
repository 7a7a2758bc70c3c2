// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hitbuild/hit/internal/fsutil"
	"github.com/hitbuild/hit/internal/recipe"
	"github.com/hitbuild/hit/internal/schedule"
	"github.com/hitbuild/hit/internal/store"
	"github.com/hitbuild/hit/pkg/buildspec"
	"github.com/hitbuild/hit/pkg/profile"
)

// ErrUnknownPackage is returned for a package name the profile does not
// declare.
var ErrUnknownPackage = errors.New("unknown package")

type (
	// Store is the part of the artifact store the builder relies on.
	// *store.Store implements it.
	Store interface {
		IsBuilt(spec buildspec.BuildSpec) bool
		Build(ctx context.Context, spec buildspec.BuildSpec, opts store.BuildOptions) (string, error)
		ArtifactDir(id buildspec.ID) string
		Dependencies(spec buildspec.BuildSpec) []recipe.Dependency
		Script(spec buildspec.BuildSpec) string
		PrepareBuildDir(ctx context.Context, spec buildspec.BuildSpec, sources []profile.Source, target string) error
	}

	// Options configures a Builder.
	Options struct {
		Logger  *slog.Logger
		Store   Store
		Profile *profile.Profile
	}

	// BuildOptions are the settings of one build invocation.
	BuildOptions struct {
		// Jobs is the recipe-level parallelism hint.
		Jobs int
		Keep store.KeepPolicy
		// Parallel bounds how many packages build at once. Values below 2
		// build one package at a time.
		Parallel int
		// Output receives the build logs.
		Output io.Writer
	}

	// Result summarizes BuildAll.
	Result struct {
		// Rounds is the number of ready-set rounds that built something.
		Rounds int
		// Built lists the packages built by this call, in completion order.
		Built []string
	}

	// Status is one line of a status report.
	Status struct {
		Name  string
		Spec  buildspec.BuildSpec
		Built bool
	}

	// Builder orchestrates the builds of one profile. Build specs are
	// derived once, in New.
	Builder struct {
		logger  *slog.Logger
		store   Store
		profile *profile.Profile

		specs       map[string]buildspec.BuildSpec
		profileSpec buildspec.BuildSpec
	}
)

// New derives the build spec of every package in dependency order, then the
// profile spec.
func New(opts Options) (*Builder, error) {
	if opts.Store == nil || opts.Profile == nil {
		return nil, errors.New("builder: store and profile are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := opts.Profile
	ids := make(map[string]buildspec.ID, len(p.Packages))
	specs := make(map[string]buildspec.BuildSpec, len(p.Packages))
	for _, name := range p.Order() {
		pkg, _ := p.Package(name)
		spec, err := buildspec.Make(pkg, ids, p.Parameters)
		if err != nil {
			return nil, err
		}
		specs[name] = spec
		ids[name] = spec.ArtifactID()
	}
	profileSpec, err := buildspec.MakeProfile(p.Name, p.Names(), ids, p.Parameters)
	if err != nil {
		return nil, err
	}

	return &Builder{
		logger:      logger,
		store:       opts.Store,
		profile:     p,
		specs:       specs,
		profileSpec: profileSpec,
	}, nil
}

// Profile returns the profile being built.
func (b *Builder) Profile() *profile.Profile { return b.profile }

// BuildSpec returns the build spec of a package. The reserved name
// "profile" selects the profile spec.
func (b *Builder) BuildSpec(name string) (buildspec.BuildSpec, error) {
	if name == profile.Reserved {
		return b.profileSpec, nil
	}
	spec, ok := b.specs[name]
	if !ok {
		return buildspec.BuildSpec{}, fmt.Errorf("%w %q in profile %s", ErrUnknownPackage, name, b.profile.Name)
	}
	return spec, nil
}

// ProfileBuildSpec returns the spec of the synthetic profile package.
func (b *Builder) ProfileBuildSpec() buildspec.BuildSpec { return b.profileSpec }

// BuildScript renders the build script of a package without touching the
// store.
func (b *Builder) BuildScript(name string) (string, error) {
	spec, err := b.BuildSpec(name)
	if err != nil {
		return "", err
	}
	return b.store.Script(spec), nil
}

// ReadySet returns the unbuilt packages whose dependencies are all built, in
// declared order.
func (b *Builder) ReadySet() ([]string, error) {
	sched, err := b.scheduler()
	if err != nil {
		return nil, err
	}
	return sched.Refresh(b.isBuilt)
}

// StatusReport returns the build state of every package, sorted by short
// artifact id. It never builds anything.
func (b *Builder) StatusReport() []Status {
	report := make([]Status, 0, len(b.specs))
	for _, name := range b.profile.Names() {
		spec := b.specs[name]
		report = append(report, Status{Name: name, Spec: spec, Built: b.store.IsBuilt(spec)})
	}
	slices.SortFunc(report, func(x, y Status) int {
		return cmp.Compare(x.Spec.ShortID(), y.Spec.ShortID())
	})
	return report
}

// Build builds one package, first building whatever it transitively depends
// on, and returns its artifact directory.
func (b *Builder) Build(ctx context.Context, name string, opts BuildOptions) (string, error) {
	if name == profile.Reserved {
		return "", fmt.Errorf("%q is not a package: build the whole profile instead", name)
	}
	if _, err := b.BuildSpec(name); err != nil {
		return "", err
	}
	closure, err := b.profile.Closure(name)
	if err != nil {
		return "", err
	}
	var dir string
	for _, n := range closure {
		if dir, err = b.buildPackage(ctx, n, opts); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// BuildAll builds every unbuilt package. Each round builds the current ready
// set and the next round is computed only after all of them have been
// published. The first failure stops the loop.
func (b *Builder) BuildAll(ctx context.Context, opts BuildOptions) (Result, error) {
	var res Result
	sched, err := b.scheduler()
	if err != nil {
		return res, err
	}
	if opts.Parallel > 1 && opts.Output != nil {
		opts.Output = &syncWriter{w: opts.Output}
	}

	for {
		ready, err := sched.Refresh(b.isBuilt)
		if err != nil {
			return res, err
		}
		if len(ready) == 0 {
			return res, nil
		}
		// Every round publishes at least one package, so a finite DAG drains
		// in at most one round per package.
		if res.Rounds >= sched.Len() {
			return res, fmt.Errorf("build loop did not converge after %d rounds", res.Rounds)
		}
		res.Rounds++
		b.logger.Debug("build round", "round", res.Rounds, "ready", ready)

		built, err := b.runRound(ctx, sched, ready, opts)
		res.Built = append(res.Built, built...)
		if err != nil {
			return res, err
		}
	}
}

func (b *Builder) runRound(ctx context.Context, sched *schedule.Scheduler, ready []string, opts BuildOptions) ([]string, error) {
	var (
		mu    sync.Mutex
		built []string
	)
	buildOne := func(ctx context.Context, name string) error {
		if err := sched.Start(name); err != nil {
			return err
		}
		_, err := b.buildPackage(ctx, name, opts)
		if ferr := sched.Finish(name, err); ferr != nil {
			return errors.Join(err, ferr)
		}
		if err != nil {
			return err
		}
		mu.Lock()
		built = append(built, name)
		mu.Unlock()
		return nil
	}

	if opts.Parallel <= 1 {
		for _, name := range ready {
			if err := buildOne(ctx, name); err != nil {
				return built, err
			}
		}
		return built, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for _, name := range ready {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A sibling failed while this one waited for a slot.
			if gctx.Err() != nil {
				return nil
			}
			return buildOne(gctx, name)
		})
	}
	err := g.Wait()
	return built, err
}

// BuildProfile builds the profile package, whose dependencies must already
// be built, and returns its id and artifact directory.
func (b *Builder) BuildProfile(ctx context.Context, opts BuildOptions) (buildspec.ID, string, error) {
	if err := b.requireBuilt(); err != nil {
		return "", "", err
	}
	dir, err := b.store.Build(ctx, b.profileSpec, store.BuildOptions{
		Jobs:   opts.Jobs,
		Keep:   opts.Keep,
		Output: opts.Output,
	})
	if err != nil {
		return "", "", err
	}
	return b.profileSpec.ArtifactID(), dir, nil
}

// ComposeProfileOut materializes the profile into target, which must not
// exist, linking or copying every file according to mode. Packages are
// merged in declared order and the first package providing a path wins.
func (b *Builder) ComposeProfileOut(ctx context.Context, target string, mode fsutil.LinkMode) error {
	if err := b.requireBuilt(); err != nil {
		return err
	}
	if err := os.Mkdir(target, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return &fsutil.TargetExistsError{Path: target}
		}
		return err
	}
	return recipe.Compose(ctx, b.store.Dependencies(b.profileSpec), target, mode, b.logger)
}

// PrepareBuildDir writes the ready-to-build directory of a package to
// target without running its recipe.
func (b *Builder) PrepareBuildDir(ctx context.Context, name string, target string) error {
	spec, err := b.BuildSpec(name)
	if err != nil {
		return err
	}
	var sources []profile.Source
	if pkg, ok := b.profile.Package(name); ok {
		sources = pkg.Sources
	}
	return b.store.PrepareBuildDir(ctx, spec, sources, target)
}

func (b *Builder) buildPackage(ctx context.Context, name string, opts BuildOptions) (string, error) {
	spec := b.specs[name]
	pkg, _ := b.profile.Package(name)
	if !b.store.IsBuilt(spec) {
		b.logger.Info("building package", "package", name, "id", spec.ArtifactID())
	}
	return b.store.Build(ctx, spec, store.BuildOptions{
		Jobs:    opts.Jobs,
		Keep:    opts.Keep,
		Output:  opts.Output,
		Sources: pkg.Sources,
	})
}

func (b *Builder) scheduler() (*schedule.Scheduler, error) {
	deps := make(map[string][]string, len(b.profile.Packages))
	for _, pkg := range b.profile.Packages {
		deps[pkg.Name] = pkg.Dependencies
	}
	return schedule.New(b.profile.Names(), deps)
}

func (b *Builder) isBuilt(name string) (bool, error) {
	return b.store.IsBuilt(b.specs[name]), nil
}

func (b *Builder) requireBuilt() error {
	var missing []string
	for _, name := range b.profile.Names() {
		if !b.store.IsBuilt(b.specs[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("profile %s: %w: %v", b.profile.Name, store.ErrNotBuilt, missing)
	}
	return nil
}

// syncWriter serializes writes from concurrent builds.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
