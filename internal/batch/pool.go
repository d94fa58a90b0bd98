package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach runs fn for every item on at most workers goroutines. Row failures
// belong in a Collector; fn returns an error only when the whole batch must
// stop, which cancels the remaining items.
func ForEach[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, idx int, item T) error) error {
	if len(items) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
