package manifest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/localbridge/localbridged/pkg/log"
)

// coalesceWindow is how long the watcher waits after the first event in
// a burst before reloading, so a sequence of writes to the same file (or
// several files dropped together) triggers one rebuild (spec.md §4.2:
// "coalesces bursty events ... within ~50 ms").
const coalesceWindow = 50 * time.Millisecond

// Watcher loads manifests from a directory, republishing an immutable
// Registry snapshot on startup and on every filesystem change.
type Watcher struct {
	dir  string
	snap atomic.Pointer[Registry]
}

// NewWatcher performs the initial load and returns a Watcher serving that
// snapshot. Call Run to start watching for changes.
func NewWatcher(dir string) (*Watcher, error) {
	w := &Watcher{dir: dir}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Snapshot returns the currently published registry. Readers never block
// on writers (spec.md §7: "producers build a new snapshot and swap via
// atomic pointer replacement").
func (w *Watcher) Snapshot() *Registry {
	return w.snap.Load()
}

func (w *Watcher) reload() error {
	manifests, err := loadDir(w.dir)
	if err != nil {
		return err
	}
	w.snap.Store(Build(manifests))
	return nil
}

// Run watches w's directory for filesystem changes, coalescing bursts
// into single reloads, until ctx is canceled. The OS event source is
// bridged into a bounded channel; under backpressure, coalesceable
// events are dropped but a reload is still eventually triggered for the
// final state (spec.md §4.2).
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(w.dir); err != nil {
		return err
	}

	pending := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case pending <- struct{}{}:
				default:
				}
			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				log.Logf("- manifest watcher error: %v", err)
			}
		}
	}()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending:
			if !timerActive {
				timer.Reset(coalesceWindow)
				timerActive = true
			}
		case <-timer.C:
			timerActive = false
			if err := w.reload(); err != nil {
				log.Logf("- manifest reload failed: %v", err)
			}
		}
	}
}
