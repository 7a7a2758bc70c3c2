// SPDX-License-Identifier: MPL-2.0

// Package watch reruns a build when a profile file or one of its local
// sources changes.
//
// Events are coalesced over a debounce window so an editor that writes a
// temporary file and renames it over the original triggers a single rebuild.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/hitbuild/hit/internal/fsutil"
	"github.com/hitbuild/hit/pkg/profile"
)

const defaultDebounce = 300 * time.Millisecond

// defaultIgnores are matched against paths relative to a watched directory.
var defaultIgnores = []string{
	"**/.git/**",
	"**/_hit/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.*.tmp-*",
	"**/.DS_Store",
}

// ErrNoRoots is returned by New when there is nothing to watch.
var ErrNoRoots = errors.New("watch: no paths to watch")

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Roots are the files and directories whose changes trigger OnChange.
		// Directories are watched recursively. A file root watches its parent
		// directory and ignores sibling files.
		Roots []string

		// Ignore are extra doublestar patterns, relative to a directory root,
		// merged with the built-in ignores.
		Ignore []string

		// Debounce is the quiet period after the last event before OnChange
		// runs. Zero means defaultDebounce.
		Debounce time.Duration

		// OnChange receives the sorted absolute paths that changed.
		OnChange func(ctx context.Context, changed []string) error

		Logger *slog.Logger
	}

	// Watcher monitors Config.Roots. Run may be called once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		files    map[string]bool
		dirs     []string
		ignores  []string
		debounce time.Duration
		log      *slog.Logger
		started  atomic.Bool
	}
)

// ProfileRoots returns the profile file plus every source of p that lives on
// the local filesystem. Remote sources are content-addressed and never change.
func ProfileRoots(p *profile.Profile) []string {
	roots := []string{p.Path}
	for _, pkg := range p.Packages {
		for _, src := range pkg.Sources {
			local := src.URL
			if u, err := url.Parse(src.URL); err == nil && len(u.Scheme) > 1 {
				if u.Scheme != "file" {
					continue
				}
				local = u.Path
			}
			if !slices.Contains(roots, local) {
				roots = append(roots, local)
			}
		}
	}
	return roots
}

// New validates cfg and registers every root with fsnotify.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Roots) == 0 {
		return nil, ErrNoRoots
	}
	for _, pat := range cfg.Ignore {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("watch: invalid ignore pattern %q", pat)
		}
	}

	w := &Watcher{
		cfg:      cfg,
		files:    make(map[string]bool),
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: cfg.Debounce,
		log:      cfg.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.log == nil {
		w.log = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.addRoots(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done. A canceled context is a clean
// exit; resource exhaustion in the kernel watcher is returned as an error.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire runs on the timer goroutine. A run still in progress pushes the
	// timer back so the accumulated paths are delivered afterwards.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.log.Debug("rebuild still running, deferring changes")
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}

		if err := w.cfg.OnChange(ctx, changed); err != nil {
			w.log.Error("rebuild failed", "err", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.log.Warn("close watcher", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if !w.relevant(evt.Name) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			w.log.Debug("change", "path", evt.Name, "op", evt.Op.String())

			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.log.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) addRoots() error {
	for _, root := range w.cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("watch: resolve %q: %w", root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		if !info.IsDir() {
			w.files[abs] = true
			if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
				return fmt.Errorf("watch: add %q: %w", filepath.Dir(abs), err)
			}
			continue
		}
		w.dirs = append(w.dirs, abs)
		if err := w.addTree(abs, abs); err != nil {
			return err
		}
	}
	return nil
}

// addTree registers dir and every directory below it that is not ignored.
func (w *Watcher) addTree(root, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("skipping unreadable path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(root, path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %q: %w", dir, err)
	}
	return nil
}

func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	for _, root := range w.dirs {
		if fsutil.Within(root, path) {
			if err := w.addTree(root, path); err != nil {
				w.log.Warn("watch new directory", "err", err)
			}
			return
		}
	}
}

// relevant reports whether path is a file root or lies below a directory
// root without matching an ignore pattern.
func (w *Watcher) relevant(path string) bool {
	if w.files[path] {
		return true
	}
	for _, root := range w.dirs {
		if fsutil.Within(root, path) && !w.ignored(root, path) {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		// A directory is ignored when anything inside it would be.
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pat, rel+"/x"); ok {
			return true
		}
	}
	return false
}
