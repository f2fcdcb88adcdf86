package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies mapFn to every element with at most workers goroutines in flight
// and preserves input order. The first error cancels ctx for the calls that
// have not finished yet and is returned alongside the partial results.
// workers <= 0 means unbounded.
func Map[T any, R any](ctx context.Context, in []T, workers int, mapFn func(context.Context, T) (R, error)) ([]R, error) {
	errGroup, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		errGroup.SetLimit(workers)
	}

	out := make([]R, len(in))
	for idx, value := range in {
		errGroup.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := mapFn(ctx, value)
			if err != nil {
				return err
			}
			out[idx] = res
			return nil
		})
	}

	return out, errGroup.Wait()
}
