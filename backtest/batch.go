package backtest

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll runs independent backtests concurrently, at most parallelism at
// a time (unbounded when <= 0). Results are in request order. The first
// validation error cancels the remaining runs and is returned.
func (r *Runner) RunAll(ctx context.Context, reqs []Request, parallelism int) ([]Result, error) {
	results := make([]Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.Run(gctx, req)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
