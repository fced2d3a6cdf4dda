package resilience

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// maxBatchSize is the hard ceiling on operations per batch group.
const maxBatchSize = 100

// BatchOptions configures batched execution.
type BatchOptions struct {
	// BatchSize is the number of operations per group. Capped at 100.
	// Default: 100
	BatchSize int

	// Parallelism is the number of groups running concurrently.
	// Default: 3
	Parallelism int
}

// ApplyDefaults sets default values for unset fields.
func (o *BatchOptions) ApplyDefaults() {
	if o.BatchSize <= 0 || o.BatchSize > maxBatchSize {
		o.BatchSize = maxBatchSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 3
	}
}

// ExecuteBatch partitions ops into groups of BatchSize and runs the groups
// with bounded parallelism. Within a group all operations run concurrently,
// each with the full retry treatment of Execute.
//
// A single failure fails the whole call; operations that already completed
// keep their side effects (callers are expected to submit idempotent work,
// which holds for upserts keyed by id).
func (e *Executor) ExecuteBatch(ctx context.Context, op Operation, ops []func(context.Context) error, opts BatchOptions) error {
	if len(ops) == 0 {
		return nil
	}
	opts.ApplyDefaults()

	groups := partition(ops, opts.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for i, group := range groups {
		g.Go(func() error {
			inner, ictx := errgroup.WithContext(gctx)
			for _, fn := range group {
				inner.Go(func() error {
					return e.Execute(ictx, op, fn)
				})
			}
			if err := inner.Wait(); err != nil {
				return fmt.Errorf("batch group %d: %w", i, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// ExecuteSequential runs ops strictly one at a time, failing fast on the
// first error.
func (e *Executor) ExecuteSequential(ctx context.Context, op Operation, ops []func(context.Context) error) error {
	for i, fn := range ops {
		if err := e.Execute(ctx, op, fn); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return nil
}

// partition splits ops into groups of at most size.
func partition[T any](items []T, size int) [][]T {
	var groups [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end])
	}
	return groups
}
