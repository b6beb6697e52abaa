package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Change reports that another writer replaced or removed a key.
type Change struct {
	Key     string
	Data    []byte
	Deleted bool
}

// Watcher turns file system events in a FileStore directory into Change
// notifications. It is how several processes sharing one data directory
// learn about each other's writes.
type Watcher struct {
	store   *FileStore
	watcher *fsnotify.Watcher
	events  chan Change
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for store. Call Start to begin emitting.
func NewWatcher(store *FileStore) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		store:   store,
		watcher: watcher,
		events:  make(chan Change, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the store directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if err := w.watcher.Add(w.store.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.store.Dir(), err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and closes the Changes and Errors channels.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	close(w.events)
	close(w.errors)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Changes returns the channel of key changes.
func (w *Watcher) Changes() <-chan Change {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			change, ok := w.convertEvent(event)
			if !ok {
				continue
			}
			select {
			case w.events <- change:
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to a Change. Temp files and chmod
// events are ignored.
func (w *Watcher) convertEvent(event fsnotify.Event) (Change, bool) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
		return Change{}, false
	}
	key := strings.TrimSuffix(name, fileExt)

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		data, err := os.ReadFile(event.Name)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Change{Key: key, Deleted: true}, true
			}
			return Change{}, false
		}
		return Change{Key: key, Data: data}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return Change{Key: key, Deleted: true}, true
	default:
		return Change{}, false
	}
}
