package middleware

import (
	"context"
	"log/slog"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Timeout returns middleware that enforces the per-job-type execution
// ceiling. The handler runs in its own goroutine so even a handler that
// ignores its context cannot hold the attempt past the deadline; the
// attempt fails with the distinct TIMEOUT code, never a business error
// code. A handler abandoned this way keeps its goroutine until it
// returns on its own; its result is discarded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) ([]byte, error) {
		if j.Timeout <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()

		type outcome struct {
			result []byte
			err    error
		}
		done := make(chan outcome, 1)

		go func() {
			result, err := next(ctx)
			done <- outcome{result: result, err: err}
		}()

		select {
		case out := <-done:
			return out.result, out.err
		case <-ctx.Done():
			logger.Warn("job attempt timed out",
				slog.String("job_type", string(j.Type)),
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", j.Timeout),
			)
			return nil, marketsync.Failf(marketsync.CodeTimeout,
				"job type %s exceeded %s ceiling", j.Type, j.Timeout)
		}
	}
}
