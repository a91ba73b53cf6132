package jobs

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/harshabose/avpipe/internal/config"
)

// RunAll runs jobs with at most concurrency in flight. A failed job does not
// stop the others; every failure is returned joined. Results keep the order
// of jobs.
func RunAll(ctx context.Context, r *Runner, jobs []config.Job, concurrency int) ([]Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Result, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i], errs[i] = Result{Job: job.Name}, fmt.Errorf("job %s: %w", job.Name, err)
				return nil
			}
			results[i], errs[i] = r.Run(ctx, job)
			if errs[i] != nil {
				r.log.Warn().Err(errs[i]).Str("job", job.Name).Msg("job failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
