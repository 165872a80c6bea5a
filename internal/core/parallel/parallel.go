// Package parallel runs a batch of operations with a bounded number in flight.
//
// Map is the only concurrency primitive of the pipeline. It admits at most
// limit operations at a time; the first failure stops admission, lets the
// operations already admitted finish, and becomes the result of the call.
package parallel

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every item with at most limit calls in flight and returns
// the results in input order.
//
// fn receives ctx unchanged: a failing sibling never cancels work that was
// already admitted. Once any call fails, no further items are admitted and
// Map returns that failure after the admitted calls return. A limit below 1
// is treated as 1. If ctx is done before an item is admitted, Map stops
// admitting and returns ctx.Err().
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) ([]R, error) {
	if limit < 1 {
		limit = 1
	}

	results := make([]R, len(items))
	sem := make(chan struct{}, limit)
	var (
		g        errgroup.Group
		failed   atomic.Bool
		admitted int
	)

admit:
	for i, item := range items {
		// Admission is decided only after a slot is held, so every admitted
		// call runs to completion.
		select {
		case <-ctx.Done():
			break admit
		case sem <- struct{}{}:
		}
		if failed.Load() || ctx.Err() != nil {
			<-sem
			break
		}

		admitted++
		g.Go(func() error {
			defer func() { <-sem }()

			r, err := fn(ctx, item)
			if err != nil {
				failed.Store(true)
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if admitted != len(items) {
		return nil, ctx.Err()
	}
	return results, nil
}

// ForEach is Map for operations without a result.
func ForEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	_, err := Map(ctx, items, limit, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, item)
	})
	return err
}
