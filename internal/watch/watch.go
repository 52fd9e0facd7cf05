// Package watch republishes implementor artifacts as a generated site tree
// changes. Artifacts written before the daemon's sink installs land in the
// registry's pending queue and drain once it does.
package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/traitdex/traitdex/internal/impljs"
	"github.com/traitdex/traitdex/internal/registry"
)

// debounceDelay is how long to wait after the last write before parsing an
// artifact. Generators write files in bursts; parsing a partial write fails
// and the next event retries anyway, so this only trims log noise.
const debounceDelay = 250 * time.Millisecond

// artifactDirs are the site subdirectories that hold implementor artifacts,
// newest layout first.
var artifactDirs = []string{"trait.impl", "implementors"}

// Watcher publishes implementor artifacts from a site tree into a Registry.
type Watcher struct {
	root string
	reg  *registry.Registry
	fsw  *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer

	done chan struct{}
}

// New creates a watcher over the artifact directories beneath root. Missing
// directories are not an error; they are picked up if the generator creates
// them while the parent is watched.
func New(root string, reg *registry.Registry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:   root,
		reg:    reg,
		fsw:    fsw,
		timers: make(map[string]*time.Timer),
		done:   make(chan struct{}),
	}

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}
	for _, dir := range artifactDirs {
		base := filepath.Join(root, dir)
		if _, err := os.Stat(base); err != nil {
			continue
		}
		if err := w.watchTree(base); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return w, nil
}

func (w *Watcher) watchTree(base string) error {
	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Start runs the event loop until Close. Existing artifacts are published
// first so a daemon restart picks up the full site state.
func (w *Watcher) Start() {
	w.publishExisting()
	go w.loop()
}

func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) publishExisting() {
	for _, dir := range artifactDirs {
		base := filepath.Join(w.root, dir)
		filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !isArtifact(path) {
				return nil
			}
			w.publish(path)
			return nil
		})
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watch: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}

	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op.Has(fsnotify.Create) && w.underArtifactDir(event.Name) {
			if err := w.watchTree(event.Name); err != nil {
				slog.Warn("watch: adding directory", "dir", event.Name, "error", err)
			}
			// Files may land between the directory's creation and our
			// watch on it; sweep so they aren't missed.
			filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() && isArtifact(path) {
					w.debounce(path)
				}
				return nil
			})
		}
		return
	}

	if !isArtifact(event.Name) || !w.underArtifactDir(event.Name) {
		return
	}
	w.debounce(event.Name)
}

// debounce schedules a publish for path, resetting any pending timer.
func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.publish(path)
	})
}

func (w *Watcher) publish(path string) {
	m, err := impljs.ParseFile(path)
	if err != nil {
		slog.Warn("watch: skipping artifact", "path", path, "error", err)
		return
	}
	slog.Info("watch: publishing artifact", "path", path, "trait", m.Trait,
		"crates", m.Len(), "fragments", m.FragmentCount())
	w.reg.Publish(m)
}

func (w *Watcher) underArtifactDir(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, dir := range artifactDirs {
		if rel == dir || strings.HasPrefix(rel, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isArtifact(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "trait.") && strings.HasSuffix(base, ".js")
}
