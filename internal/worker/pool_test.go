package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsAllTasks(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	var count int64
	for i := 0; i < 20; i++ {
		err := pool.Submit(context.Background(), func(_ context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
		require.NoError(t, err)
	}
	pool.Wait()

	assert.Equal(t, int64(20), atomic.LoadInt64(&count))
	assert.Equal(t, int64(20), pool.Stats().Completed)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	var active, peak int64
	for i := 0; i < 10; i++ {
		err := pool.Submit(context.Background(), func(_ context.Context) error {
			cur := atomic.AddInt64(&active, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&active, -1)
			return nil
		})
		require.NoError(t, err)
	}
	pool.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestPool_CountsFailures(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	require.NoError(t, pool.Submit(context.Background(), func(_ context.Context) error {
		return errors.New("provider unavailable")
	}))
	require.NoError(t, pool.Submit(context.Background(), func(_ context.Context) error {
		return nil
	}))
	pool.Wait()

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestPool_RecoversPanics(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()

	require.NoError(t, pool.Submit(context.Background(), func(_ context.Context) error {
		panic("boom")
	}))
	pool.Wait()

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Panics)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestPool_RejectsAfterClose(t *testing.T) {
	pool := NewPool(1)
	pool.Close()

	err := pool.Submit(context.Background(), func(_ context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_SubmitHonorsContext(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()

	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(_ context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func(_ context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	pool.Wait()
}
