package fsnotify

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForCallback waits up to timeout for the callback channel to fire.
func waitForCallback(ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestWatcher_DetectsFileChange(t *testing.T) {
	dir := t.TempDir()
	expFile := filepath.Join(dir, "experiment.yaml")
	require.NoError(t, os.WriteFile(expFile, []byte("name: original\n"), 0644))

	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan struct{}, 10)
	err = w.Watch(expFile, func() {
		changed <- struct{}{}
	})
	require.NoError(t, err)

	// Give watcher time to start
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(expFile, []byte("name: modified\n"), 0644))

	assert.True(t, waitForCallback(changed, 2*time.Second), "expected callback for file change")
}

func TestWatcher_DetectsFileReplacement(t *testing.T) {
	// Editors commonly save by writing a temp file and renaming it over the
	// original, so replacement must still trigger the callback.
	dir := t.TempDir()
	expFile := filepath.Join(dir, "experiment.yaml")
	require.NoError(t, os.WriteFile(expFile, []byte("name: original\n"), 0644))

	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan struct{}, 10)
	require.NoError(t, w.Watch(expFile, func() {
		changed <- struct{}{}
	}))

	time.Sleep(50 * time.Millisecond)

	tmp := filepath.Join(dir, "experiment.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("name: replaced\n"), 0644))
	require.NoError(t, os.Rename(tmp, expFile))

	assert.True(t, waitForCallback(changed, 2*time.Second), "expected callback for replaced file")
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	expFile := filepath.Join(dir, "experiment.yaml")
	require.NoError(t, os.WriteFile(expFile, []byte("name: original\n"), 0644))

	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan struct{}, 10)
	require.NoError(t, w.Watch(expFile, func() {
		changed <- struct{}{}
	}))

	time.Sleep(50 * time.Millisecond)

	// Changes to other files in the same directory must not fire.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("name: other\n"), 0644)

	assert.False(t, waitForCallback(changed, 500*time.Millisecond), "should not have received callback for sibling files")

	require.NoError(t, os.WriteFile(expFile, []byte("name: changed\n"), 0644))
	assert.True(t, waitForCallback(changed, 2*time.Second), "expected callback for watched file")
}

func TestWatcher_StopCleanup(t *testing.T) {
	dir := t.TempDir()
	expFile := filepath.Join(dir, "experiment.yaml")
	require.NoError(t, os.WriteFile(expFile, []byte("name: original\n"), 0644))

	w, err := NewWatcher()
	require.NoError(t, err)

	callCount := 0
	var mu sync.Mutex
	require.NoError(t, w.Watch(expFile, func() {
		mu.Lock()
		callCount++
		mu.Unlock()
	}))

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, w.Stop())

	mu.Lock()
	countAfterStop := callCount
	mu.Unlock()

	// Write after stop — should NOT trigger callback.
	os.WriteFile(expFile, []byte("name: after stop\n"), 0644)
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	countAfterWrite := callCount
	mu.Unlock()

	assert.Equal(t, countAfterStop, countAfterWrite, "callbacks fired after Stop()")

	// Double-stop should be safe
	assert.NoError(t, w.Stop())
}
