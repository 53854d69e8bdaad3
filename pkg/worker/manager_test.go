package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneakpeak/pkg/logger"
)

func TestManager_ProcessesEveryJobOnce(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 50} {
		m := NewManager(workers, logger.NewNop())

		var mu sync.Mutex
		seen := make(map[int]int)
		stats := m.Process(context.Background(), 20, func(_ context.Context, _, index int) error {
			mu.Lock()
			seen[index]++
			mu.Unlock()
			return nil
		})

		assert.Equal(t, 20, stats.Succeeded, "workers=%d", workers)
		assert.Zero(t, stats.Failed)
		require.Len(t, seen, 20)
		for i := 0; i < 20; i++ {
			assert.Equal(t, 1, seen[i])
		}
	}
}

func TestManager_BoundsConcurrency(t *testing.T) {
	m := NewManager(3, nil)

	var current, peak int32
	m.Process(context.Background(), 12, func(context.Context, int, int) error {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestManager_ErrorsAndPanicsAreIsolated(t *testing.T) {
	m := NewManager(2, logger.NewNop())
	boom := errors.New("boom")

	stats := m.Process(context.Background(), 4, func(_ context.Context, _, index int) error {
		switch index {
		case 1:
			return boom
		case 2:
			panic("unexpected nil page")
		}
		return nil
	})

	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
	assert.NoError(t, stats.Errors[0])
	assert.ErrorIs(t, stats.Errors[1], boom)

	var panicErr *PanicError
	require.ErrorAs(t, stats.Errors[2], &panicErr)
	assert.Equal(t, "unexpected nil page", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.NoError(t, stats.Errors[3])
}

func TestManager_StopsStartingJobsAfterCancel(t *testing.T) {
	m := NewManager(1, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	var handled int32
	stats := m.Process(ctx, 5, func(_ context.Context, _, index int) error {
		atomic.AddInt32(&handled, 1)
		if index == 1 {
			cancel()
		}
		return nil
	})

	assert.Equal(t, int32(2), atomic.LoadInt32(&handled))
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 3, stats.Failed)
	assert.ErrorIs(t, stats.Errors[4], context.Canceled)
}

func TestManager_ZeroJobs(t *testing.T) {
	stats := NewManager(4, nil).Process(context.Background(), 0, func(context.Context, int, int) error {
		t.Fatal("handler must not run")
		return nil
	})
	assert.Zero(t, stats.Succeeded+stats.Failed)
}
