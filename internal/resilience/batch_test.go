package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteBatchRunsAllOperations(t *testing.T) {
	e := newTestExecutor(t, Config{Dependency: "store"})

	var completed int64
	ops := make([]func(context.Context) error, 25)
	for i := range ops {
		ops[i] = func(ctx context.Context) error {
			atomic.AddInt64(&completed, 1)
			return nil
		}
	}

	err := e.ExecuteBatch(context.Background(), OpUpsert, ops, BatchOptions{BatchSize: 10, Parallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(25), atomic.LoadInt64(&completed))
}

func TestExecuteBatchBoundsParallelism(t *testing.T) {
	e := newTestExecutor(t, Config{Dependency: "store"})

	var mu sync.Mutex
	var active, peak int

	ops := make([]func(context.Context) error, 12)
	for i := range ops {
		ops[i] = func(ctx context.Context) error {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return nil
		}
	}

	// 6 groups of 2, at most 2 groups in flight: at most 4 concurrent ops.
	err := e.ExecuteBatch(context.Background(), OpUpsert, ops, BatchOptions{BatchSize: 2, Parallelism: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 4)
}

func TestExecuteBatchFailureFailsCall(t *testing.T) {
	e := newTestExecutor(t, Config{Dependency: "store", MaxRetries: 1})

	var completed int64
	boom := errors.New("boom")
	ops := []func(context.Context) error{
		func(ctx context.Context) error { atomic.AddInt64(&completed, 1); return nil },
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error { atomic.AddInt64(&completed, 1); return nil },
	}

	err := e.ExecuteBatch(context.Background(), OpUpsert, ops, BatchOptions{BatchSize: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	// Completed operations keep their side effects.
	assert.LessOrEqual(t, atomic.LoadInt64(&completed), int64(2))
}

func TestExecuteBatchEmptyIsNoop(t *testing.T) {
	e := newTestExecutor(t, Config{Dependency: "store"})
	require.NoError(t, e.ExecuteBatch(context.Background(), OpUpsert, nil, BatchOptions{}))
}

func TestExecuteSequentialFailsFast(t *testing.T) {
	e := newTestExecutor(t, Config{Dependency: "store", MaxRetries: 1})

	var order []int
	boom := errors.New("boom")
	ops := []func(context.Context) error{
		func(ctx context.Context) error { order = append(order, 1); return nil },
		func(ctx context.Context) error { order = append(order, 2); return boom },
		func(ctx context.Context) error { order = append(order, 3); return nil },
	}

	err := e.ExecuteSequential(context.Background(), OpDelete, ops)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, order)
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		items int
		size  int
		want  []int // group lengths
	}{
		{name: "even split", items: 10, size: 5, want: []int{5, 5}},
		{name: "remainder", items: 7, size: 3, want: []int{3, 3, 1}},
		{name: "single group", items: 2, size: 10, want: []int{2}},
		{name: "empty", items: 0, size: 5, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.items)
			groups := partition(items, tt.size)

			var lengths []int
			for _, g := range groups {
				lengths = append(lengths, len(g))
			}
			assert.Equal(t, tt.want, lengths)
		})
	}
}
