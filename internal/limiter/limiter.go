// Package limiter runs groups of fetches with a cap on how many are in flight at once.
package limiter

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency keeps bulk enrichment under third-party rate limits.
const DefaultConcurrency = 4

// Result holds the outcome of one task.
type Result[T any] struct {
	Value T
	Err   error
}

// Task is a single fetch operation.
type Task[T any] func(ctx context.Context) (T, error)

// Run executes tasks with at most limit running at the same time. Tasks start in
// submission order as slots free up. A failing task never cancels its siblings; each
// outcome is returned at the same index as its task.
func Run[T any](ctx context.Context, limit int, tasks []Task[T]) []Result[T] {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]Result[T], len(tasks))

	var g errgroup.Group
	g.SetLimit(limit)

	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result[T]{Err: err}
				return nil
			}
			v, err := task(ctx)
			results[i] = Result[T]{Value: v, Err: err}
			return nil
		})
	}

	_ = g.Wait() // tasks never return an error to the group
	return results
}

// Map applies fn to every item through Run.
func Map[T any](ctx context.Context, limit int, items []string, fn func(ctx context.Context, item string) (T, error)) []Result[T] {
	tasks := make([]Task[T], len(items))
	for i, item := range items {
		tasks[i] = func(ctx context.Context) (T, error) {
			return fn(ctx, item)
		}
	}
	return Run(ctx, limit, tasks)
}
