package taxonomy

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.db")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var fired atomic.Int64
	w := NewWatcher(path, func() { fired.Add(1) }, nil)
	w.window = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	assert.True(t, waitFor(t, 2*time.Second, func() bool { return fired.Load() > 0 }),
		"expected onChange after a write to the watched file")
}

func TestWatcher_CoalescesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.db")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var fired atomic.Int64
	w := NewWatcher(path, func() { fired.Add(1) }, nil)
	w.window = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.True(t, waitFor(t, 2*time.Second, func() bool { return fired.Load() > 0 }))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(1), fired.Load(), "rapid writes should coalesce into one notification")
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.db")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var fired atomic.Int64
	w := NewWatcher(path, func() { fired.Add(1) }, nil)
	w.window = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(0), fired.Load())
}

func TestWatcher_MatchesSidecarFiles(t *testing.T) {
	w := NewWatcher("/data/taxonomy.db", func() {}, nil)

	assert.True(t, w.matches("taxonomy.db", "/data/taxonomy.db"))
	assert.True(t, w.matches("taxonomy.db", "/data/taxonomy.db-wal"))
	assert.True(t, w.matches("taxonomy.db", "/data/taxonomy.db-shm"))
	assert.False(t, w.matches("taxonomy.db", "/data/other.db"))
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.db")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w := NewWatcher(path, func() {}, nil)
	require.NoError(t, w.Start(context.Background()))

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_NoNotifyAfterStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.db")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var fired atomic.Int64
	w := NewWatcher(path, func() { fired.Add(1) }, nil)
	w.window = 50 * time.Millisecond

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	// Stop before the debounce window elapses; the pending timer must not
	// fire the callback.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, w.Stop())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(0), fired.Load())
}
