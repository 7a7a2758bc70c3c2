// SPDX-License-Identifier: MPL-2.0

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/hitbuild/hit/pkg/buildspec"
)

const (
	// MetaDir is the metadata directory inside every artifact.
	MetaDir = "_hit"
	// MarkerFile is the completion marker; its presence means "built".
	MarkerFile = "artifact.toml"
	// SpecFile holds the build spec document.
	SpecFile = "build.json"
	// ScriptFile holds the rendered recipe.
	ScriptFile = "build.sh"
	// LogFile holds the captured build output.
	LogFile = "build.log"
)

// Metadata is the content of the completion marker.
type Metadata struct {
	ID           buildspec.ID   `toml:"id"`
	Name         string         `toml:"name"`
	Hash         string         `toml:"hash"`
	ShortID      string         `toml:"short_id"`
	Kind         buildspec.Kind `toml:"kind"`
	Runner       string         `toml:"runner"`
	Jobs         int            `toml:"jobs"`
	BuiltAt      time.Time      `toml:"built_at"`
	Duration     string         `toml:"duration"`
	Dependencies []buildspec.ID `toml:"dependencies"`
}

func newMetadata(spec buildspec.BuildSpec, runner string, jobs int, started, finished time.Time) Metadata {
	return Metadata{
		ID:           spec.ArtifactID(),
		Name:         spec.Name(),
		Hash:         spec.Hash(),
		ShortID:      spec.ShortID(),
		Kind:         spec.Kind(),
		Runner:       runner,
		Jobs:         jobs,
		BuiltAt:      finished.UTC(),
		Duration:     finished.Sub(started).Round(time.Millisecond).String(),
		Dependencies: spec.DependencyIDs(),
	}
}

func writeMetadata(dir string, meta Metadata) error {
	data, err := toml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return writeFileSync(filepath.Join(dir, MetaDir, MarkerFile), data)
}

// ReadMetadata decodes the completion marker of the artifact at dir.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaDir, MarkerFile))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := toml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MarkerFile, err)
	}
	return &meta, nil
}

// writeFileSync writes and fsyncs a file, creating its directory.
func writeFileSync(path string, data []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
