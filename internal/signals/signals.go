// Package signals lets one gala process ask another to stop an event.
// A stop request is a file named stop-<eventID> in the signals directory;
// the process running that event watches the directory and consumes it.
package signals

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/gala/internal/logging"
)

const stopPrefix = "stop-"

// StopPath returns the signal file for eventID.
func StopPath(dir, eventID string) string {
	return filepath.Join(dir, stopPrefix+eventID)
}

// SendStop asks whichever process runs eventID to stop it.
func SendStop(dir, eventID string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signals dir: %w", err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(StopPath(dir, eventID), []byte(stamp+"\n"), 0644); err != nil {
		return fmt.Errorf("write stop signal: %w", err)
	}
	return nil
}

// Clear removes a pending stop request, e.g. a stale one from before a
// fresh start.
func Clear(dir, eventID string) error {
	err := os.Remove(StopPath(dir, eventID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Watcher dispatches stop files to per-event handlers.
type Watcher struct {
	dir string
	log *logging.Logger

	mu       sync.Mutex
	handlers map[string]func()

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher starts watching dir, creating it if needed.
func NewWatcher(dir string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create signals dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		log:      logging.Component("signals"),
		handlers: make(map[string]func()),
		watcher:  fw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Watch registers onStop for eventID. A stop file that already exists
// fires immediately.
func (w *Watcher) Watch(eventID string, onStop func()) {
	w.mu.Lock()
	w.handlers[eventID] = onStop
	w.mu.Unlock()

	if _, err := os.Stat(StopPath(w.dir, eventID)); err == nil {
		w.fire(eventID)
	}
}

// Unwatch drops the handler for eventID.
func (w *Watcher) Unwatch(eventID string) {
	w.mu.Lock()
	delete(w.handlers, eventID)
	w.mu.Unlock()
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			base := filepath.Base(ev.Name)
			if eventID, ok := strings.CutPrefix(base, stopPrefix); ok {
				w.fire(eventID)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WarnCtx("signal watcher error", map[string]any{"error": err})
		}
	}
}

// fire consumes the stop file and runs the handler, if one is registered.
func (w *Watcher) fire(eventID string) {
	w.mu.Lock()
	handler, ok := w.handlers[eventID]
	w.mu.Unlock()
	if !ok {
		return
	}
	if err := Clear(w.dir, eventID); err != nil {
		w.log.WarnCtx("could not remove stop signal", map[string]any{"event_id": eventID, "error": err})
	}
	w.log.InfoCtx("stop signal received", map[string]any{"event_id": eventID})
	handler()
}
