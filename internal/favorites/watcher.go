package favorites

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/patric-chuzhbe/userdir/internal/logger"
)

type fileReloader interface {
	Reload(ctx context.Context) error
	FileName() string
}

type reloader interface {
	Reload(ctx context.Context) bool
}

// Watcher reloads the favorites when their backing file is rewritten by
// another process, e.g. the terminal client toggling a favorite while the
// server runs. The directory is watched rather than the file because writes
// replace the file through a rename.
type Watcher struct {
	watcher  *fsnotify.Watcher
	file     fileReloader
	store    reloader
	fileName string
	debounce time.Duration
	done     chan struct{}
}

func NewWatcher(file fileReloader, store reloader) (*Watcher, error) {
	if file.FileName() == "" {
		return nil, fmt.Errorf("favorites watcher needs a file-backed storage")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fileName, err := filepath.Abs(file.FileName())
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(fileName)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("in internal/favorites/watcher.go/NewWatcher(): error while `watcher.Add()` calling: %w", err)
	}

	return &Watcher{
		watcher:  watcher,
		file:     file,
		store:    store,
		fileName: fileName,
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	go func() {
		defer close(w.done)
		defer w.watcher.Close()

		var pending <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.concerns(event) {
					continue
				}
				pending = time.After(w.debounce)

			case <-pending:
				pending = nil
				w.reload(ctx)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				logger.Log.Warnw("favorites watcher error", "error", err)
			}
		}
	}()
}

// Done is closed once Run has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) concerns(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != w.fileName {
		return false
	}

	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) reload(ctx context.Context) {
	if err := w.file.Reload(ctx); err != nil {
		logger.Log.Warnw("unable to reload favorites file", "error", err)
		return
	}

	if w.store.Reload(ctx) {
		logger.Log.Infoln("favorites changed on disk, views notified")
	}
}
