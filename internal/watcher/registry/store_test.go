package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"anchorwatch/internal/watcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watches.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	entries := []watcher.Entry{
		{
			Symbol:     "ETHUSDT",
			Status:     watcher.StatusRunning,
			State:      watcher.StateConfirming,
			StartedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			DeadlineAt: time.Date(2026, 3, 14, 12, 45, 0, 0, time.UTC),
			Checks:     7,
		},
		{Symbol: "BTCUSDT", Status: watcher.StatusCompleted},
	}
	require.NoError(t, store.Save(entries))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	// Save sorts by symbol.
	assert.Equal(t, "BTCUSDT", loaded[0].Symbol)
	assert.Equal(t, "ETHUSDT", loaded[1].Symbol)
	assert.Equal(t, 7, loaded[1].Checks)
	assert.Equal(t, watcher.StateConfirming, loaded[1].State)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStore_SkipsCorruptEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watches.json")

	good, err := json.Marshal(watcher.Entry{Symbol: "GOODUSDT", Status: watcher.StatusRunning})
	require.NoError(t, err)
	doc := map[string]any{
		"saved_at": time.Now().UTC(),
		"entries": []json.RawMessage{
			json.RawMessage(`{"symbol":123}`), // wrong type, skipped
			good,
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "GOODUSDT", loaded[0].Symbol)
}

func TestFileStore_AtomicRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watches.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save([]watcher.Entry{{Symbol: "ONEUSDT"}}))
	require.NoError(t, store.Save([]watcher.Entry{{Symbol: "TWOUSDT"}}))

	// No temp file left behind; the document holds only the latest state.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "TWOUSDT", loaded[0].Symbol)
}
