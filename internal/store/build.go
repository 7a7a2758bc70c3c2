// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hitbuild/hit/internal/fsutil"
	"github.com/hitbuild/hit/internal/recipe"
	"github.com/hitbuild/hit/internal/sourcecache"
	"github.com/hitbuild/hit/pkg/buildspec"
	"github.com/hitbuild/hit/pkg/profile"
)

// Build realizes spec and returns its artifact directory. An artifact that is
// already built is returned without running anything. Concurrent calls for the
// same spec run the recipe at most once.
func (s *Store) Build(ctx context.Context, spec buildspec.BuildSpec, opts BuildOptions) (string, error) {
	id := spec.ArtifactID()
	if dir, err := s.lookup(id); err == nil {
		return dir, nil
	}

	unlock, err := s.lock(id)
	if err != nil {
		return "", err
	}
	defer unlock()

	// Another build may have published while we waited for the lock.
	dir, err := s.lookup(id)
	switch {
	case err == nil:
		return dir, nil
	case errors.Is(err, ErrStoreCorrupt):
		s.opts.Logger.Warn("quarantining incomplete artifact", "id", id, "error", err)
		if err := s.quarantine(id); err != nil {
			return "", err
		}
	case !errors.Is(err, ErrNotBuilt):
		return "", err
	}
	if err := s.removeStaging(id); err != nil {
		return "", err
	}

	for _, dep := range s.Dependencies(spec) {
		if _, err := s.lookup(dep.ID); err != nil {
			return "", fmt.Errorf("build %s: dependency %s is not available: %w", id, dep.ID, err)
		}
	}

	return s.run(ctx, spec, opts)
}

// run performs one build attempt. The caller holds the artifact lock.
func (s *Store) run(ctx context.Context, spec buildspec.BuildSpec, opts BuildOptions) (string, error) {
	id := spec.ArtifactID()
	attempt := uuid.NewString()
	buildDir := filepath.Join(s.opts.BuildRoot, spec.ShortID()+"-"+attempt[:8])
	staging := s.stagingDir(id, attempt)
	final := s.ArtifactDir(id)
	logger := s.opts.Logger.With("id", id)

	if err := os.MkdirAll(filepath.Dir(buildDir), 0o755); err != nil {
		return "", err
	}
	if err := s.populate(ctx, spec, opts.Sources, buildDir); err != nil {
		failure := s.abandon(spec, buildDir, opts.Keep, err)
		logger.Error("build failed before the recipe ran", "error", err, "log", failure.LogPath)
		return "", failure
	}

	logPath := filepath.Join(buildDir, MetaDir, LogFile)
	logFile, err := os.Create(logPath)
	if err != nil {
		_ = os.RemoveAll(buildDir)
		return "", err
	}
	var out io.Writer = logFile
	if opts.Output != nil {
		out = io.MultiWriter(logFile, opts.Output)
	}

	if err := os.MkdirAll(staging, 0o755); err != nil {
		logFile.Close()
		_ = os.RemoveAll(buildDir)
		return "", err
	}

	runCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	job := &recipe.Job{
		Spec:         spec,
		Script:       s.Script(spec),
		BuildDir:     buildDir,
		ArtifactDir:  staging,
		PrefixDir:    final,
		Jobs:         max(opts.Jobs, 1),
		Dependencies: s.Dependencies(spec),
		Stdout:       out,
		Stderr:       out,
	}

	logger.Info("building", "runner", s.opts.Runner.Name(), "build_dir", buildDir)
	started := s.opts.Clock.Now()
	runErr := s.opts.Runner.Run(runCtx, job)
	if runErr == nil {
		runErr = runCtx.Err()
	}
	if closeErr := logFile.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}

	if runErr == nil {
		meta := newMetadata(spec, s.opts.Runner.Name(), job.Jobs, started, s.opts.Clock.Now())
		runErr = s.publish(buildDir, staging, final, meta)
	}

	if runErr != nil {
		_ = os.RemoveAll(staging)
		failure := &BuildFailure{Package: spec.Name(), ArtifactID: id, LogPath: logPath, Err: runErr}
		if opts.Keep.Retain(true) {
			failure.BuildDir = buildDir
		} else {
			failure.LogPath = s.preserveLog(logPath, filepath.Base(buildDir))
			_ = os.RemoveAll(buildDir)
		}
		logger.Error("build failed", "error", runErr, "log", failure.LogPath)
		return "", failure
	}

	if !opts.Keep.Retain(false) {
		if err := os.RemoveAll(buildDir); err != nil {
			logger.Warn("failed to remove build directory", "dir", buildDir, "error", err)
		}
	}
	logger.Info("published", "dir", final)
	return final, nil
}

// populate fills a fresh build directory with the sources and the recipe.
func (s *Store) populate(ctx context.Context, spec buildspec.BuildSpec, sources []profile.Source, dir string) error {
	if err := os.Mkdir(dir, 0o755); err != nil {
		return err
	}
	if err := s.unpackSources(ctx, spec, sources, dir); err != nil {
		return err
	}
	data, err := spec.Indent()
	if err != nil {
		return err
	}
	if err := writeFileSync(filepath.Join(dir, MetaDir, SpecFile), data); err != nil {
		return err
	}
	return writeFileSync(filepath.Join(dir, MetaDir, ScriptFile), []byte(s.Script(spec)))
}

// abandon ends an attempt whose build directory could not be populated. The
// error is written to the build log so a retained directory explains itself,
// and the directory is kept or removed like that of a failed recipe.
func (s *Store) abandon(spec buildspec.BuildSpec, buildDir string, keep KeepPolicy, cause error) *BuildFailure {
	failure := &BuildFailure{Package: spec.Name(), ArtifactID: spec.ArtifactID(), Err: cause}
	if _, err := os.Stat(buildDir); err != nil {
		return failure
	}
	logPath := filepath.Join(buildDir, MetaDir, LogFile)
	if err := writeFileSync(logPath, []byte("hit: "+cause.Error()+"\n")); err == nil {
		failure.LogPath = logPath
	}
	if keep.Retain(true) {
		failure.BuildDir = buildDir
		return failure
	}
	if failure.LogPath != "" {
		failure.LogPath = s.preserveLog(logPath, filepath.Base(buildDir))
	}
	_ = os.RemoveAll(buildDir)
	return failure
}

// unpackSources fetches and unpacks every source the spec names. The spec
// only records content keys, so the locations come from sources.
func (s *Store) unpackSources(ctx context.Context, spec buildspec.BuildSpec, sources []profile.Source, dir string) error {
	refs := spec.Doc().Sources
	if len(refs) == 0 {
		return nil
	}
	if s.opts.Sources == nil {
		return errors.New("no source cache configured")
	}
	urls := make(map[string]string, len(sources))
	for _, src := range sources {
		urls[src.Key] = src.URL
	}
	for _, ref := range refs {
		url, ok := urls[ref.Key]
		if !ok {
			return fmt.Errorf("no location for source %s", ref.Key)
		}
		src := profile.Source{URL: url, Key: ref.Key, Target: ref.Target, Strip: ref.Strip}
		cached, err := s.opts.Sources.Fetch(ctx, src)
		if err != nil {
			return err
		}
		if err := sourcecache.Unpack(ctx, cached, filepath.Join(dir, filepath.FromSlash(ref.Target)), ref.Strip, path.Base(src.URL)); err != nil {
			return fmt.Errorf("unpack %s: %w", ref.Key, err)
		}
	}
	return nil
}

// publish records metadata in the staging directory and renames it into
// place. The marker is written last so that it only exists in a complete
// tree.
func (s *Store) publish(buildDir, staging, final string, meta Metadata) error {
	for _, name := range []string{SpecFile, ScriptFile, LogFile} {
		data, err := os.ReadFile(filepath.Join(buildDir, MetaDir, name))
		if err != nil {
			return err
		}
		if err := writeFileSync(filepath.Join(staging, MetaDir, name), data); err != nil {
			return err
		}
	}
	if err := writeMetadata(staging, meta); err != nil {
		return err
	}
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("publish %s: %w", meta.ID, err)
	}
	return nil
}

// PrepareBuildDir materializes the build directory of spec at target, with
// sources unpacked and _hit/build.sh written, without running the recipe.
// target must not exist.
func (s *Store) PrepareBuildDir(ctx context.Context, spec buildspec.BuildSpec, sources []profile.Source, target string) error {
	if _, err := os.Lstat(target); err == nil {
		return &fsutil.TargetExistsError{Path: target}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := s.populate(ctx, spec, sources, target); err != nil {
		_ = os.RemoveAll(target)
		return err
	}
	return nil
}

func (s *Store) stagingDir(id buildspec.ID, attempt string) string {
	name, hash := id.Split()
	return filepath.Join(s.opts.ArtifactRoot, name, ".staging-"+hash+"-"+attempt)
}

// removeStaging deletes staging directories left by crashed attempts. The
// caller holds the artifact lock, so none of them can be live.
func (s *Store) removeStaging(id buildspec.ID) error {
	name, hash := id.Split()
	matches, err := filepath.Glob(filepath.Join(s.opts.ArtifactRoot, name, ".staging-"+hash+"-*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		s.opts.Logger.Debug("removing stale staging directory", "dir", m)
		if err := os.RemoveAll(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) quarantine(id buildspec.ID) error {
	name, hash := id.Split()
	dest := filepath.Join(s.opts.ArtifactRoot, name, ".corrupt-"+hash+"-"+uuid.NewString()[:8])
	if err := os.Rename(s.ArtifactDir(id), dest); err != nil {
		return fmt.Errorf("quarantine %s: %w", id, err)
	}
	return nil
}

// preserveLog moves a build log out of a build directory that is about to be
// removed and returns its new path, or "" if it could not be kept.
func (s *Store) preserveLog(logPath, attempt string) string {
	logsDir := filepath.Join(s.opts.BuildRoot, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return ""
	}
	dest := filepath.Join(logsDir, attempt+".log")
	if err := os.Rename(logPath, dest); err != nil {
		return ""
	}
	return dest
}
