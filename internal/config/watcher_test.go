package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dominicdesy/intelia-expert-sub011/internal/event"
)

func TestWatcherPublishesOnConfigChange(t *testing.T) {
	cfgDir := isolateConfig(t)

	bus := event.NewBus()
	defer bus.Close()

	updated := make(chan event.Event, 1)
	bus.Subscribe(event.ConfigUpdated, func(e event.Event) {
		select {
		case updated <- e:
		default:
		}
	})

	w, err := NewWatcher(bus)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	path := filepath.Join(cfgDir, "expert.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"backendURL": "https://changed.intelia.com"}`), 0o644))

	select {
	case e := <-updated:
		cfg, ok := e.Data.(*Config)
		require.True(t, ok, "event payload should be *Config")
		require.Equal(t, "https://changed.intelia.com", cfg.BackendURL)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config.updated event")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	cfgDir := isolateConfig(t)

	bus := event.NewBus()
	defer bus.Close()

	updated := make(chan event.Event, 4)
	bus.Subscribe(event.ConfigUpdated, func(e event.Event) {
		updated <- e
	})

	w, err := NewWatcher(bus)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "notes.txt"), []byte("x"), 0o644))

	select {
	case <-updated:
		t.Fatal("unrelated file should not trigger a config event")
	case <-time.After(300 * time.Millisecond):
	}
}
