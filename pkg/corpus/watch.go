package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/fsnotify.v1"
)

// Watcher reloads nothing by itself — the corpus is read straight from
// disk on every fetch — but notifies an operator-supplied callback
// whenever a .txt article file under the corpus root changes, the same
// create/write/remove dispatch the teacher's pattern.Registry uses for
// its YAML format directory.
type Watcher struct {
	mu       sync.Mutex
	dir      string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	onChange func(event, path string)
	log      *zap.SugaredLogger
}

// NewWatcher creates a Watcher over dir. Call Watch to start it.
func NewWatcher(dir string, log *zap.SugaredLogger) *Watcher {
	return &Watcher{dir: dir, log: log}
}

// SetOnChange registers a callback invoked for every create/modify/remove
// event on a corpus article file.
func (w *Watcher) SetOnChange(fn func(event, path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Watch starts watching the corpus root for changes in a background
// goroutine. Call Close to stop it.
func (w *Watcher) Watch() error {
	if w.dir == "" {
		return fmt.Errorf("corpus: no directory configured for watching")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("corpus: creating watcher: %w", err)
	}

	w.watcher = fsw
	w.stopChan = make(chan struct{})

	go w.loop()

	// fsnotify watches are not recursive, and article files live in
	// per-code subdirectories, so every directory under the root is added.
	if err := filepath.WalkDir(w.dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	}); err != nil {
		fsw.Close()
		return fmt.Errorf("corpus: watching directory %s: %w", w.dir, err)
	}
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w.stopChan != nil {
		close(w.stopChan)
	}
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".txt") {
				continue
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				w.notify("create", event.Name)
			case event.Op&fsnotify.Write == fsnotify.Write:
				w.notify("modify", event.Name)
			case event.Op&fsnotify.Remove == fsnotify.Remove, event.Op&fsnotify.Rename == fsnotify.Rename:
				w.notify("remove", event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warnw("corpus watch error", "error", err)
			}
		}
	}
}

func (w *Watcher) notify(event, path string) {
	w.mu.Lock()
	cb := w.onChange
	w.mu.Unlock()
	if cb != nil {
		cb(event, path)
	}
}
