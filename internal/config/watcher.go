package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dominicdesy/intelia-expert-sub011/internal/event"
	"github.com/dominicdesy/intelia-expert-sub011/internal/logging"
)

// Watcher reloads configuration when a file in the config directory changes
// and publishes a config-updated event with the fresh config.
type Watcher struct {
	watcher *fsnotify.Watcher
	bus     *event.Bus
	dir     string
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher creates a watcher for the standard config directory. The
// directory itself is watched because editors replace files on save, which
// drops a watch placed on the file directly.
func NewWatcher(bus *event.Bus) (*Watcher, error) {
	dir := GetPaths().Config

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher: w,
		bus:     bus,
		dir:     dir,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching for config changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.run()
}

// Stop stops the watcher and waits for the run loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	log := logging.Component("config")
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isConfigFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cfg, err := Load()
			if err != nil {
				log.Warn().Err(err).Str("file", ev.Name).Msg("config reload failed")
				continue
			}
			log.Info().Str("file", ev.Name).Msg("config reloaded")
			w.bus.Publish(event.Event{Type: event.ConfigUpdated, Data: cfg})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func isConfigFile(path string) bool {
	switch filepath.Base(path) {
	case "expert.json", "expert.jsonc", "expert.yaml", "expert.yml":
		return true
	}
	return false
}
