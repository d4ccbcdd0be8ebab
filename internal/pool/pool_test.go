package pool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcTask adapts a closure to the Task interface.
type funcTask struct {
	key string
	fn  func() (any, error)
}

func (t *funcTask) Key() string       { return t.key }
func (t *funcTask) Run() (any, error) { return t.fn() }

func TestSubmitReturnsResult(t *testing.T) {
	p := New(2, 0)
	defer p.Close()

	f := p.Submit(&funcTask{key: "a", fn: func() (any, error) { return 42, nil }})
	val, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestSubmitAllPreservesOrder(t *testing.T) {
	p := New(4, 0)
	defer p.Close()

	tasks := make([]Task, 100)
	for i := 0; i < 100; i++ {
		i := i
		tasks[i] = &funcTask{
			key: fmt.Sprintf("task-%d", i),
			fn: func() (any, error) {
				// Uneven durations shuffle completion order.
				if i%3 == 0 {
					time.Sleep(time.Millisecond)
				}
				return i, nil
			},
		}
	}

	futures := p.SubmitAll(tasks)
	require.Len(t, futures, 100)
	for i, f := range futures {
		val, err := f.Wait()
		require.NoError(t, err)
		assert.Equal(t, i, val, "future %d must hold the result for input %d", i, i)
	}
}

func TestTaskPanicFaultsOnlyThatTask(t *testing.T) {
	p := New(1, 0)
	defer p.Close()

	bad := p.Submit(&funcTask{key: "bad", fn: func() (any, error) { panic("boom") }})
	good := p.Submit(&funcTask{key: "good", fn: func() (any, error) { return "ok", nil }})

	_, err := bad.Wait()
	assert.ErrorContains(t, err, "panicked")

	// The worker survives and keeps serving queued tasks.
	val, err := good.Wait()
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestTaskErrorNotMemoized(t *testing.T) {
	p := New(1, 0)
	defer p.Close()

	var calls atomic.Int32
	mk := func() Task {
		return &funcTask{key: "flaky", fn: func() (any, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("transient")
			}
			return "recovered", nil
		}}
	}

	_, err := p.Submit(mk()).Wait()
	assert.Error(t, err)

	val, err := p.Submit(mk()).Wait()
	require.NoError(t, err)
	assert.Equal(t, "recovered", val)
}

func TestMemoizationSkipsRepeatRuns(t *testing.T) {
	// Single worker so both submissions land on the same memo cache.
	p := New(1, 0)
	defer p.Close()

	var calls atomic.Int32
	mk := func() Task {
		return &funcTask{key: "same-params", fn: func() (any, error) {
			calls.Add(1)
			return "cached", nil
		}}
	}

	for i := 0; i < 5; i++ {
		val, err := p.Submit(mk()).Wait()
		require.NoError(t, err)
		assert.Equal(t, "cached", val)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(2, 0)
	p.Close()

	f := p.Submit(&funcTask{key: "late", fn: func() (any, error) { return 1, nil }})
	_, err := f.Wait()
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestDefaultSizeCapped(t *testing.T) {
	assert.LessOrEqual(t, DefaultSize(), 4)
	assert.GreaterOrEqual(t, DefaultSize(), 1)
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		workers  int
		expected [][2]int
	}{
		{name: "empty", n: 0, workers: 4, expected: nil},
		{name: "fewer items than workers", n: 2, workers: 4, expected: [][2]int{{0, 1}, {1, 2}}},
		{name: "even split", n: 8, workers: 4, expected: [][2]int{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{name: "uneven split", n: 10, workers: 4, expected: [][2]int{{0, 3}, {3, 6}, {6, 9}, {9, 10}}},
		{name: "single worker", n: 5, workers: 1, expected: [][2]int{{0, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Chunks(tt.n, tt.workers))
		})
	}
}
