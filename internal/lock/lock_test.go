package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseSameKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swm.lock")
	mgr, err := Open(path)
	require.NoError(t, err)
	defer mgr.Close()

	ctx := context.Background()
	l, err := mgr.Acquire(ctx, StatusKey)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	// Re-acquiring the same key after release must succeed immediately.
	l2, err := mgr.Acquire(ctx, StatusKey)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquireDistinctKeysConcurrently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swm.lock")
	mgr, err := Open(path)
	require.NoError(t, err)
	defer mgr.Close()

	ctx := context.Background()
	done := make(chan error, 2)
	for _, key := range []int{1000, 1001} {
		key := key
		go func() {
			l, err := mgr.Acquire(ctx, key)
			if err != nil {
				done <- err
				return
			}
			time.Sleep(10 * time.Millisecond)
			done <- l.Release()
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
}

func TestAcquireRejectsNegativeKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swm.lock")
	mgr, err := Open(path)
	require.NoError(t, err)
	defer mgr.Close()

	_, err = mgr.Acquire(context.Background(), -1)
	require.Error(t, err)
}
