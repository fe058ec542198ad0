package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veldscape/landcover-cli/internal/model"
)

// JobResult pairs a batch job with its outcome.
type JobResult struct {
	Job    Job
	Result *model.RunResult
	Err    error
}

// Failed reports how many jobs in a batch ended in an error.
func Failed(results []JobResult) int {
	n := 0
	for _, jr := range results {
		if jr.Err != nil {
			n++
		}
	}
	return n
}

// ProcessBatch runs jobs with bounded concurrency. Jobs are isolated from
// each other: a failing scene is recorded in its slot and the rest keep
// going. Only context cancellation stops the batch early.
func (r *Runner) ProcessBatch(ctx context.Context, jobs []Job, concurrency int) []JobResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]JobResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			res, err := r.Process(ctx, job)
			results[i] = JobResult{Job: job, Result: res, Err: err}
			if err != nil {
				zap.L().Error("scene failed",
					zap.String("scene", job.Scene.Path),
					zap.Error(err),
				)
			}
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		zap.L().Warn("batch interrupted", zap.Error(err))
	}
	return results
}
