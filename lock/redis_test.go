package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) *WriterLock {
	t.Helper()
	mr := miniredis.RunT(t)
	l, err := NewWriterLock("redis://"+mr.Addr(), "catalog-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAcquireAndRelease(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, time.Second))
	require.NoError(t, l.Release(ctx))
}

func TestReleaseWithoutAcquireReturnsErrNotHeld(t *testing.T) {
	l := newTestLock(t)
	assert.ErrorIs(t, l.Release(context.Background()), ErrNotHeld)
}

func TestSecondAcquireBlocksUntilReleased(t *testing.T) {
	mr := miniredis.RunT(t)
	first, err := NewWriterLock("redis://"+mr.Addr(), "shared")
	require.NoError(t, err)
	second, err := NewWriterLock("redis://"+mr.Addr(), "shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close(); _ = second.Close() })

	require.NoError(t, first.Acquire(context.Background(), 5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = second.Acquire(ctx, time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Release(context.Background()))
	require.NoError(t, second.Acquire(context.Background(), time.Second))
}

func TestReleaseDoesNotReleaseAnotherHoldersLock(t *testing.T) {
	mr := miniredis.RunT(t)
	first, err := NewWriterLock("redis://"+mr.Addr(), "shared")
	require.NoError(t, err)
	second, err := NewWriterLock("redis://"+mr.Addr(), "shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close(); _ = second.Close() })

	require.NoError(t, first.Acquire(context.Background(), 50*time.Millisecond))
	mr.FastForward(100 * time.Millisecond)
	require.NoError(t, second.Acquire(context.Background(), 5*time.Second))

	// first's token no longer matches the key second now holds.
	assert.ErrorIs(t, first.Release(context.Background()), ErrNotHeld)
}
