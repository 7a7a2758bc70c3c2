// SPDX-License-Identifier: MPL-2.0

package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hitbuild/hit/internal/recipe"
	"github.com/hitbuild/hit/internal/sourcecache"
	"github.com/hitbuild/hit/pkg/buildspec"
	"github.com/hitbuild/hit/pkg/profile"
)

type (
	// Clock supplies timestamps for artifact metadata.
	Clock interface {
		Now() time.Time
	}

	// Options configures a Store.
	Options struct {
		// ArtifactRoot holds published artifacts.
		ArtifactRoot string
		// BuildRoot holds private build directories and preserved logs.
		BuildRoot string
		// Sources resolves package sources; required for packages with sources.
		Sources sourcecache.Cache
		// Runner executes jobs; usually a *recipe.Mux.
		Runner recipe.Runner
		// Timeout bounds a single recipe run; zero means no limit.
		Timeout time.Duration
		Logger  *slog.Logger
		Clock   Clock
	}

	// BuildOptions are the per-call build settings.
	BuildOptions struct {
		// Jobs is the parallelism hint exported to the recipe as $JOBS.
		Jobs int
		Keep KeepPolicy
		// Output additionally receives the build log as it is written.
		Output io.Writer
		// Sources locates the content keys recorded in the spec.
		Sources []profile.Source
	}

	// Store is the artifact store. It is safe for concurrent use.
	Store struct {
		opts Options

		mu    sync.Mutex
		locks map[buildspec.ID]*sync.Mutex
	}

	realClock struct{}
)

func (realClock) Now() time.Time { return time.Now() }

// New validates opts and returns a Store. The root directories are created
// lazily.
func New(opts Options) (*Store, error) {
	if opts.ArtifactRoot == "" || opts.BuildRoot == "" {
		return nil, errors.New("store: artifact root and build root are required")
	}
	if opts.Runner == nil {
		return nil, errors.New("store: a runner is required")
	}
	var err error
	if opts.ArtifactRoot, err = filepath.Abs(opts.ArtifactRoot); err != nil {
		return nil, err
	}
	if opts.BuildRoot, err = filepath.Abs(opts.BuildRoot); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Store{opts: opts, locks: make(map[buildspec.ID]*sync.Mutex)}, nil
}

// ArtifactRoot returns the absolute artifact root.
func (s *Store) ArtifactRoot() string { return s.opts.ArtifactRoot }

// BuildRoot returns the absolute build root.
func (s *Store) BuildRoot() string { return s.opts.BuildRoot }

// ArtifactDir returns where the artifact id is (or would be) published.
func (s *Store) ArtifactDir(id buildspec.ID) string {
	name, hash := id.Split()
	return filepath.Join(s.opts.ArtifactRoot, name, hash)
}

// IsBuilt reports whether spec has a published artifact. It never modifies
// the store.
func (s *Store) IsBuilt(spec buildspec.BuildSpec) bool {
	_, err := os.Stat(s.markerPath(spec.ArtifactID()))
	return err == nil
}

// Lookup returns the directory of a built artifact, ErrNotBuilt when there is
// none, or a *CorruptionError when a directory exists without its marker.
func (s *Store) Lookup(spec buildspec.BuildSpec) (string, error) {
	return s.lookup(spec.ArtifactID())
}

func (s *Store) lookup(id buildspec.ID) (string, error) {
	dir := s.ArtifactDir(id)
	if _, err := os.Stat(s.markerPath(id)); err == nil {
		return dir, nil
	}
	switch _, err := os.Lstat(dir); {
	case err == nil:
		return "", &CorruptionError{ArtifactID: id, Path: dir}
	case errors.Is(err, fs.ErrNotExist):
		return "", ErrNotBuilt
	default:
		return "", err
	}
}

// Metadata returns the marker content of a built artifact.
func (s *Store) Metadata(spec buildspec.BuildSpec) (*Metadata, error) {
	dir, err := s.Lookup(spec)
	if err != nil {
		return nil, err
	}
	return ReadMetadata(dir)
}

// Dependencies resolves the dependency artifacts of spec to directories, in
// composition order for a profile and canonical order otherwise.
func (s *Store) Dependencies(spec buildspec.BuildSpec) []recipe.Dependency {
	refs := spec.Dependencies()
	if order := spec.Compose(); len(order) > 0 {
		byName := make(map[string]buildspec.DependencyRef, len(refs))
		for _, r := range refs {
			byName[r.Name] = r
		}
		refs = refs[:0]
		for _, name := range order {
			refs = append(refs, byName[name])
		}
	}

	deps := make([]recipe.Dependency, len(refs))
	for i, r := range refs {
		deps[i] = recipe.Dependency{Name: r.Name, ID: r.ID, Dir: s.ArtifactDir(r.ID)}
	}
	return deps
}

// Script renders the build script of spec. It only derives paths and does
// not touch the store.
func (s *Store) Script(spec buildspec.BuildSpec) string {
	return recipe.RenderScript(spec, s.Dependencies(spec))
}

func (s *Store) markerPath(id buildspec.ID) string {
	return filepath.Join(s.ArtifactDir(id), MetaDir, MarkerFile)
}

func (s *Store) lockPath(id buildspec.ID) string {
	name, hash := id.Split()
	return filepath.Join(s.opts.ArtifactRoot, name, "."+hash+".lock")
}

// lock serializes builds of id inside this process and, on Linux, across
// processes. The returned function releases both locks.
func (s *Store) lock(id buildspec.ID) (func(), error) {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	if err := os.MkdirAll(filepath.Dir(s.lockPath(id)), 0o755); err != nil {
		m.Unlock()
		return nil, err
	}
	fl, err := acquireFileLock(s.lockPath(id))
	if err != nil && !errors.Is(err, errFlockUnavailable) {
		m.Unlock()
		return nil, fmt.Errorf("lock %s: %w", id, err)
	}
	return func() {
		fl.Release()
		m.Unlock()
	}, nil
}
