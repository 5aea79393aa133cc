package confloader

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) record(p string) {
	c.mu.Lock()
	c.paths = append(c.paths, p)
	c.mu.Unlock()
}

func (c *changes) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func startWatcher(t *testing.T, path string, debounce time.Duration) *changes {
	t.Helper()
	w, err := NewWatcher(WithWatcherLogger(logger.NewNop()), WithWatcherDebounce(debounce))
	require.NoError(t, err)
	require.NoError(t, w.Watch(path))

	c := &changes{}
	w.OnChange(c.record)
	w.StartAsync()
	t.Cleanup(func() { assert.NoError(t, w.Stop()) })
	return c
}

func TestWatcher_WatchMissingDir(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(logger.NewNop()))
	require.NoError(t, err)
	defer w.Stop()

	assert.Error(t, w.Watch("/nonexistent/path/config.yaml"))
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := NewWatcher(WithWatcherLogger(logger.NewNop()))
	require.NoError(t, err)
	w.StartAsync()

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	c := startWatcher(t, path, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	want, _ := filepath.Abs(path)
	assert.Eventually(t, func() bool {
		got := c.get()
		return len(got) > 0 && got[0] == want
	}, 2*time.Second, 10*time.Millisecond)
	for _, p := range c.get() {
		assert.Equal(t, want, p)
	}
}

func TestWatcher_CoalescesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 0\n"), 0o644))

	c := startWatcher(t, path, 300*time.Millisecond)

	for i := range 5 {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString("b: " + string(rune('1'+i)) + "\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	assert.Eventually(t, func() bool { return len(c.get()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Len(t, c.get(), 1)
}

func TestWatcher_RenameIntoPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 0\n"), 0o644))

	c := startWatcher(t, path, 20*time.Millisecond)

	tmp := filepath.Join(dir, ".config.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("a: 1\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	assert.Eventually(t, func() bool { return len(c.get()) > 0 }, 2*time.Second, 10*time.Millisecond)
}
