// Package jobs runs bounded batches of tasks with a join barrier.
package jobs

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// PoolSize is the number of tasks a batch runs at once.
const PoolSize = 14

// Task is one unit of work in a batch.
type Task func(ctx context.Context) error

// PanicError is returned for a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Batch is a set of tasks sharing a context. The first failure cancels the
// context; tasks that have not started by then return without running.
type Batch struct {
	g   *errgroup.Group
	ctx context.Context
}

// NewBatch returns a batch running at most limit tasks concurrently, or
// PoolSize when limit is not positive.
func NewBatch(ctx context.Context, limit int) *Batch {
	if limit <= 0 {
		limit = PoolSize
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	return &Batch{g: g, ctx: gctx}
}

// Context returns the batch context.
func (b *Batch) Context() context.Context { return b.ctx }

// Go submits task, blocking while the batch is at its limit.
func (b *Batch) Go(task Task) {
	b.g.Go(func() (err error) {
		if err := b.ctx.Err(); err != nil {
			return err
		}
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return task(b.ctx)
	})
}

// Wait blocks until every submitted task has returned and reports the
// first error.
func (b *Batch) Wait() error {
	return b.g.Wait()
}

// ForEach runs fn over items as one batch.
func ForEach[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, i int, item T) error) error {
	b := NewBatch(ctx, limit)
	for i, item := range items {
		b.Go(func(ctx context.Context) error {
			return fn(ctx, i, item)
		})
	}
	return b.Wait()
}
