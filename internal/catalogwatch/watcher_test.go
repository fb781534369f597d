package catalogwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatcher_DebouncesReloads(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "starter"), 0o755))

	var reloads atomic.Int32
	w := New(func(context.Context) error {
		reloads.Add(1)
		return nil
	}, 100*time.Millisecond, root)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register the tree
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		path := filepath.Join(root, "starter", "starter_fat_loss_gym_3d.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"plan_id": "x"}`), 0o600))
	}

	assert.Eventually(t, func() bool { return reloads.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_MissingDir(t *testing.T) {
	w := New(func(context.Context) error { return nil }, 0, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, w.Run(context.Background()))
	assert.Equal(t, DefaultDebounce, w.debounce)
}
