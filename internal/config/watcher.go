package config

import (
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long the watcher waits for a burst of events, such as
// an editor's truncate-then-write, to end before reloading.
const settleDelay = 100 * time.Millisecond

// Watcher reloads a settings file when it changes. onChange receives each
// reloaded settings value that validates and differs from the last one.
// Settings that fail to load keep the previous value.
type Watcher struct {
	path     string
	onChange func(*Settings)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	once     sync.Once

	mu       sync.Mutex
	settings *Settings
	timer    *time.Timer
}

// NewWatcher loads path and starts watching it.
func NewWatcher(path string, onChange func(*Settings)) (*Watcher, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// The directory is watched because editors often replace the file.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
		settings: s,
	}
	go w.watch()
	return w, nil
}

// Settings returns the last valid settings.
func (w *Watcher) Settings() *Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

func (w *Watcher) watch() {
	name := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				w.schedule()
			case event.Has(fsnotify.Remove):
				slog.Warn("settings file removed, keeping current settings",
					slog.String("path", w.path))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("settings watcher error", slog.String("error", err.Error()))
		}
	}
}

// schedule reloads once events have settled.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(settleDelay, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	s, err := Load(w.path)
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		slog.Error("settings not reloaded",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}

	w.mu.Lock()
	same := reflect.DeepEqual(w.settings, s)
	if !same {
		w.settings = s
	}
	w.mu.Unlock()
	if same {
		return
	}

	slog.Info("settings reloaded", slog.String("path", w.path))
	if w.onChange != nil {
		w.onChange(s)
	}
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}
