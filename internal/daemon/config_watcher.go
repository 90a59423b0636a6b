package daemon

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor or config
// management tool emits when rewriting a file.
const reloadDebounce = 500 * time.Millisecond

// configWatcher watches one config file and fires onChange after a quiet
// period. The parent directory is watched because most writers replace the
// file via rename, which drops the watch on the file itself.
type configWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func watchConfig(path string, onChange func()) (*configWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	w := &configWatcher{watcher: watcher, done: make(chan struct{})}
	go w.loop(abs, onChange)

	slog.Debug("Watching config file", "path", abs)
	return w, nil
}

func (w *configWatcher) loop(path string, onChange func()) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("Config change detected", "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(reloadDebounce)
			}

		case <-fire:
			timer = nil
			fire = nil
			onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *configWatcher) close() {
	close(w.done)
	w.watcher.Close()
}
