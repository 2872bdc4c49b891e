package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics become PANIC-coded failures with the stack attached, so
// one bad handler never crashes the worker loop.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (result []byte, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("job handler panicked",
					slog.String("job_type", string(j.Type)),
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = &marketsync.Failure{
					Code:    marketsync.CodePanic,
					Message: "panic in job handler",
					Stack:   stack,
				}
			}
		}()
		return next(ctx)
	}
}
