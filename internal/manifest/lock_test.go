package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLocker_MutualExclusion(t *testing.T) {
	l := NewInMemoryLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "slug")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlock2, err := l.Lock(ctx, "slug")
		require.NoError(t, err)
		close(acquired)
		unlock2()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock must not succeed while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock should succeed once the first is released")
	}
}

func TestInMemoryLocker_CtxCancelDoesNotLeakHeldLock(t *testing.T) {
	l := NewInMemoryLocker()
	bg := context.Background()

	unlock, err := l.Lock(bg, "slug")
	require.NoError(t, err)

	cancelCtx, cancel := context.WithCancel(bg)
	cancel()
	_, err = l.Lock(cancelCtx, "slug")
	assert.ErrorIs(t, err, context.Canceled)

	unlock()

	unlock2, err := l.Lock(bg, "slug")
	require.NoError(t, err, "lock must still be acquirable after the held lock releases")
	unlock2()
}

func TestInMemoryLocker_DifferentSlugsDoNotBlock(t *testing.T) {
	l := NewInMemoryLocker()
	ctx := context.Background()

	unlock1, err := l.Lock(ctx, "slug-a")
	require.NoError(t, err)
	defer unlock1()

	done := make(chan struct{})
	go func() {
		unlock2, err := l.Lock(ctx, "slug-b")
		require.NoError(t, err)
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking a different slug must not block on slug-a's lock")
	}
}
