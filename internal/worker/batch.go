package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Afaqak/asr-worker/internal/domain"
	"github.com/Afaqak/asr-worker/internal/logger"
)

// RunFunc executes one pipeline attempt.
type RunFunc func(ctx context.Context, req domain.ProcessRequest) (domain.ProcessResult, error)

// Runner fans pipeline runs out over a batch with a concurrency cap and a
// spawn rate limit. Both floors are 1.
type Runner struct {
	run           RunFunc
	maxConcurrent int
	perMinute     int
	log           *logger.Logger
}

func NewRunner(run RunFunc, maxConcurrent, perMinute int, log *logger.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if perMinute < 1 {
		perMinute = 1
	}
	return &Runner{
		run:           run,
		maxConcurrent: maxConcurrent,
		perMinute:     perMinute,
		log:           log,
	}
}

// Run processes every item and returns results in input order. One item's
// failure lands in its slot and never aborts the rest of the batch.
func (r *Runner) Run(ctx context.Context, items []domain.ProcessRequest) []domain.BatchItemResult {
	results := make([]domain.BatchItemResult, len(items))
	limiter := rate.NewLimiter(rate.Limit(float64(r.perMinute)/60.0), 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			slot := domain.BatchItemResult{
				YouTubeURL: item.YouTubeURL,
				VideoID:    item.VideoID,
			}
			if err := limiter.Wait(gctx); err != nil {
				slot.Error = err.Error()
				results[i] = slot
				return nil
			}

			res, err := r.run(gctx, item)
			if err != nil {
				r.log.WithError(err).WithField("item_id", domain.SanitizeItemID(item.VideoID)).Warn("batch item failed")
				slot.Error = err.Error()
			} else {
				slot.Result = &res
			}
			results[i] = slot
			return nil
		})
	}

	// Item errors are captured per slot, never returned to the group.
	g.Wait()
	return results
}
