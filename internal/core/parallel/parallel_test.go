package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// inflightTracker records the highest number of concurrent calls observed.
type inflightTracker struct {
	current atomic.Int64
	max     atomic.Int64
	calls   atomic.Int64
}

func (tr *inflightTracker) enter() {
	tr.calls.Add(1)
	n := tr.current.Add(1)
	for {
		m := tr.max.Load()
		if n <= m || tr.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (tr *inflightTracker) leave() {
	tr.current.Add(-1)
}

func seq(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

// =============================================================================
// Map Tests
// =============================================================================

func TestMap_NeverExceedsLimit(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 7} {
		for _, n := range []int{0, 1, 5, 20} {
			t.Run(fmt.Sprintf("limit=%d/n=%d", limit, n), func(t *testing.T) {
				var tr inflightTracker

				results, err := Map(context.Background(), seq(n), limit, func(_ context.Context, i int) (int, error) {
					tr.enter()
					defer tr.leave()
					time.Sleep(2 * time.Millisecond)
					return i * 10, nil
				})

				require.NoError(t, err)
				assert.LessOrEqual(t, tr.max.Load(), int64(limit))
				assert.Equal(t, int64(n), tr.calls.Load())
				require.Len(t, results, n)
				for i, r := range results {
					assert.Equal(t, i*10, r)
				}
			})
		}
	}
}

func TestMap_PreservesInputOrder(t *testing.T) {
	items := []string{"slow", "fast", "medium"}
	delays := map[string]time.Duration{"slow": 30 * time.Millisecond, "fast": 0, "medium": 10 * time.Millisecond}

	results, err := Map(context.Background(), items, 3, func(_ context.Context, s string) (string, error) {
		time.Sleep(delays[s])
		return s + "!", nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"slow!", "fast!", "medium!"}, results)
}

func TestMap_LimitBelowOneIsSequential(t *testing.T) {
	var tr inflightTracker
	_, err := Map(context.Background(), seq(5), 0, func(_ context.Context, i int) (int, error) {
		tr.enter()
		defer tr.leave()
		time.Sleep(time.Millisecond)
		return i, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), tr.max.Load())
	assert.Equal(t, int64(5), tr.calls.Load())
}

func TestMap_FailureStopsAdmission(t *testing.T) {
	boom := errors.New("boom")
	var (
		mu      sync.Mutex
		started []int
	)

	_, err := Map(context.Background(), seq(10), 1, func(_ context.Context, i int) (int, error) {
		mu.Lock()
		started = append(started, i)
		mu.Unlock()
		if i == 2 {
			return 0, boom
		}
		return i, nil
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int{0, 1, 2}, started)
}

func TestMap_AdmittedSiblingsFinish(t *testing.T) {
	boom := errors.New("boom")
	var siblingFinished atomic.Bool
	release := make(chan struct{})

	_, err := Map(context.Background(), []string{"slow", "fail"}, 2, func(ctx context.Context, s string) (string, error) {
		if s == "fail" {
			close(release)
			return "", boom
		}
		<-release
		time.Sleep(10 * time.Millisecond)
		// The sibling failure must not cancel the context handed to admitted work.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		siblingFinished.Store(true)
		return s, nil
	})

	require.ErrorIs(t, err, boom)
	assert.True(t, siblingFinished.Load())
}

func TestMap_FastFailureDoesNotSkipAdmittedItems(t *testing.T) {
	boom := errors.New("boom")
	var finished atomic.Int64

	for range 50 {
		finished.Store(0)
		_, err := Map(context.Background(), seq(4), 4, func(_ context.Context, i int) (int, error) {
			if i == 3 {
				return 0, boom
			}
			time.Sleep(time.Millisecond)
			finished.Add(1)
			return i, nil
		})

		require.ErrorIs(t, err, boom)
		require.Equal(t, int64(3), finished.Load())
	}
}

func TestMap_NothingAdmittedAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	var (
		calls   atomic.Int64
		barrier sync.WaitGroup
	)
	barrier.Add(2)

	// Both slots are held by failing calls, so the next item waits for a slot
	// that is only released after a failure was recorded.
	_, err := Map(context.Background(), seq(10), 2, func(_ context.Context, i int) (int, error) {
		calls.Add(1)
		if i < 2 {
			barrier.Done()
			barrier.Wait()
			return 0, boom
		}
		return i, nil
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), calls.Load())
}

func TestMap_ReturnsFirstFailure(t *testing.T) {
	first := errors.New("first")

	_, err := Map(context.Background(), []int{0, 1}, 1, func(_ context.Context, i int) (int, error) {
		if i == 0 {
			return 0, first
		}
		return 0, errors.New("second")
	})

	assert.ErrorIs(t, err, first)
}

func TestMap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	_, err := Map(ctx, seq(3), 2, func(_ context.Context, i int) (int, error) {
		calls.Add(1)
		return i, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), calls.Load())
}

// =============================================================================
// ForEach Tests
// =============================================================================

func TestForEach(t *testing.T) {
	var sum atomic.Int64
	err := ForEach(context.Background(), []int{1, 2, 3, 4}, 2, func(_ context.Context, i int) error {
		sum.Add(int64(i))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(10), sum.Load())
}

func TestForEach_Failure(t *testing.T) {
	boom := errors.New("boom")
	err := ForEach(context.Background(), []int{1}, 2, func(context.Context, int) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
