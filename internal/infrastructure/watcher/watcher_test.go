package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

func startWatcher(t *testing.T, dir string, trigger func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(dir, 50*time.Millisecond, trigger, nil).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// fsnotify registration happens inside Run.
	time.Sleep(100 * time.Millisecond)
}

func TestBurstOfWritesTriggersOneSync(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte{byte(i)}, 0o644))
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewSubdirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	sub := filepath.Join(dir, "2024")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.txt"), []byte("b"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestBusyPipelineIsRetried(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	startWatcher(t, dir, func(context.Context) error {
		if calls.Add(1) == 1 {
			return domain.WrapError(domain.ErrBatchInProgress, "sync", domain.ErrBatchInProgress)
		}
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestHiddenPathsAreIgnored(t *testing.T) {
	assert.True(t, isHidden("/data", "/data/.git/index"))
	assert.False(t, isHidden("/data", "/data/docs/a.txt"))
}
