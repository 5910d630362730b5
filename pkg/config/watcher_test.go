package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, events <-chan WatchEvent) WatchEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return WatchEvent{}
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.turq")
	require.NoError(t, os.WriteFile(path, []byte("status(200)\n"), 0o644))

	w := NewWatcher(path, 10*time.Millisecond)
	events := w.Start()
	defer w.Stop()

	// A different size guarantees a change even on coarse mtime clocks.
	require.NoError(t, os.WriteFile(path, []byte("status(201)\nclose()\n"), 0o644))

	ev := nextEvent(t, events)
	require.NoError(t, ev.Error)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, "status(201)\nclose()\n", ev.Text)
}

func TestWatcher_ReportsMissingFileOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.turq")
	require.NoError(t, os.WriteFile(path, []byte("status(200)\n"), 0o644))

	w := NewWatcher(path, 10*time.Millisecond)
	events := w.Start()
	defer w.Stop()

	require.NoError(t, os.Remove(path))
	ev := nextEvent(t, events)
	assert.ErrorIs(t, ev.Error, ErrFileNotFound)

	select {
	case ev := <-events:
		t.Fatalf("unexpected second event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("status(200)\n"), 0o644))
	ev = nextEvent(t, events)
	require.NoError(t, ev.Error)
	assert.Equal(t, "status(200)\n", ev.Text)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	w := NewWatcher(filepath.Join(t.TempDir(), "none"), 0)
	assert.Equal(t, DefaultWatchInterval, w.interval)
	w.Start()
	w.Stop()
	w.Stop()
}
