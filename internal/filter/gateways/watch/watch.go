// Package watch reports edits to editable (local) rule-list files.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logpkg "github.com/haukened/simplefilter/internal/filter/common/log"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher maps profile slots to files and calls onChange with the slot when
// its file is written or replaced. Parent directories are watched instead of
// the files themselves, since editors often save by renaming over the target.
// Bursts of events for one slot within the debounce window collapse into one
// call.
type Watcher struct {
	mu     sync.Mutex
	fw     *fsnotify.Watcher
	slots  map[int]string // slot -> cleaned path
	dirs   map[string]int // watched dir -> number of slots in it
	closed bool

	onChange func(ctx context.Context, slot int)
	debounce time.Duration
	logger   logpkg.Logger
}

// New creates a Watcher. Run must be called to deliver events.
func New(onChange func(ctx context.Context, slot int), debounce time.Duration, logger logpkg.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return &Watcher{
		fw:       fw,
		slots:    make(map[int]string),
		dirs:     make(map[string]int),
		onChange: onChange,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Set makes slot track path, replacing whatever it tracked before. An empty
// path stops tracking. The file itself need not exist yet; its directory must.
func (w *Watcher) Set(slot int, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watcher closed")
	}

	if path != "" {
		path = filepath.Clean(path)
	}
	if old, ok := w.slots[slot]; ok {
		if old == path {
			return nil
		}
		delete(w.slots, slot)
		w.releaseDir(filepath.Dir(old))
	}
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	if w.dirs[dir] == 0 {
		if err := w.fw.Add(dir); err != nil {
			return fmt.Errorf("watching %q: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.slots[slot] = path
	w.logger.Debug(map[string]any{"slot": slot, "path": path}, "watch_set")
	return nil
}

func (w *Watcher) releaseDir(dir string) {
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return
	}
	delete(w.dirs, dir)
	if err := w.fw.Remove(dir); err != nil {
		w.logger.Debug(map[string]any{"dir": dir, "error": err}, "watch_remove_failed")
	}
}

// slotsFor returns the slots tracking name.
func (w *Watcher) slotsFor(name string) []int {
	name = filepath.Clean(name)
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []int
	for slot, p := range w.slots {
		if p == name {
			out = append(out, slot)
		}
	}
	return out
}

// Run delivers events until ctx is done, then closes the underlying watcher.
// onChange receives ctx, so work it starts ends with Run.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	pending := make(map[int]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slots := w.slotsFor(ev.Name)
			if len(slots) == 0 {
				continue
			}
			for _, s := range slots {
				pending[s] = struct{}{}
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(map[string]any{"error": err}, "watch_error")
		case <-timer.C:
			for slot := range pending {
				delete(pending, slot)
				w.logger.Debug(map[string]any{"slot": slot}, "watch_file_changed")
				w.onChange(ctx, slot)
			}
		}
	}
}

// Close releases the watcher without running it. Run closes it on return.
func (w *Watcher) Close() error {
	w.close()
	return nil
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	_ = w.fw.Close()
}
