package apidb

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// descriptorWatcher reports changes to individual descriptor files.
// fsnotify watches directories, so each descriptor's parent directory is
// watched and events for other files in it are dropped.
type descriptorWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	onChange func(path string)

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]int

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newDescriptorWatcher(logger *slog.Logger, onChange func(path string)) (*descriptorWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &descriptorWatcher{
		watcher:  fw,
		logger:   logger,
		onChange: onChange,
		files:    make(map[string]bool),
		dirs:     make(map[string]int),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// add starts watching path, which must be absolute
func (w *descriptorWatcher) add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[path] {
		return nil
	}
	dir := filepath.Dir(path)
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[path] = true
	return nil
}

func (w *descriptorWatcher) watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path]
}

func (w *descriptorWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			path := filepath.Clean(event.Name)
			if !w.watching(path) {
				continue
			}
			w.logger.Info("Descriptor changed",
				slog.String("path", path),
				slog.String("op", event.Op.String()))
			w.onChange(path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Descriptor watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *descriptorWatcher) close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
