package marketsync

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// Code classifies a job or fetch failure. Codes drive retry decisions:
// validation and duplicate failures are never retried, external and
// timeout failures are, and a permanent failure ends up in the DLQ.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeDuplicateJob      Code = "DUPLICATE_JOB"
	CodeNotFound          Code = "NOT_FOUND"
	CodeExternalAPI       Code = "EXTERNAL_API"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeTimeout           Code = "TIMEOUT"
	CodeSchemaUnavailable Code = "SCHEMA_UNAVAILABLE"
	CodePermanent         Code = "PERMANENT"
	CodeUnknownJobType    Code = "UNKNOWN_JOB_TYPE"
	CodePanic             Code = "PANIC"
	CodeCancelled         Code = "CANCELLED"
)

// Retryable reports whether a failure with this code should count toward
// the retry loop rather than failing the job immediately.
func (c Code) Retryable() bool {
	switch c {
	case CodeValidation, CodeDuplicateJob, CodeUnknownJobType, CodePermanent, CodeCancelled:
		return false
	default:
		return true
	}
}

// Failure is a classified job error: a machine-readable code, a message,
// and the stack captured at classification time. It is what gets persisted
// on the job row and in DLQ entries.
type Failure struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// NewFailure builds a Failure with the current stack.
func NewFailure(code Code, msg string) *Failure {
	return &Failure{Code: code, Message: msg, Stack: string(debug.Stack())}
}

// Failf builds a Failure with a formatted message and the current stack.
func Failf(code Code, format string, args ...any) *Failure {
	return NewFailure(code, fmt.Sprintf(format, args...))
}

// ClassifyError converts an arbitrary handler error into a Failure.
// Errors that already are a *Failure pass through; context deadline
// errors map to the distinct TIMEOUT code so a hung handler is never
// confused with a business error.
func ClassifyError(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewFailure(CodeTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return NewFailure(CodeCancelled, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrPreconditionFailed):
		return NewFailure(CodeValidation, err.Error())
	case errors.Is(err, ErrDuplicateJob):
		return NewFailure(CodeDuplicateJob, err.Error())
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrCycleNotFound):
		return NewFailure(CodeNotFound, err.Error())
	case errors.Is(err, ErrSchemaUnavailable):
		return NewFailure(CodeSchemaUnavailable, err.Error())
	case errors.Is(err, ErrHandlerNotRegistered), errors.Is(err, ErrUnknownJobType):
		return NewFailure(CodeUnknownJobType, err.Error())
	default:
		return NewFailure(CodeExternalAPI, err.Error())
	}
}

// RateLimitError is returned by source fetchers when the external API
// reports a throttle response. RetryAfter carries the server's explicit
// wait hint when present; Remaining carries the server-reported token
// count, which always wins over locally estimated bucket state. Set
// Remaining negative when the response carried no quota information.
type RateLimitError struct {
	RetryAfter time.Duration
	Remaining  float64
	Message    string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return "marketsync: rate limited: " + e.Message
	}
	return "marketsync: rate limited"
}
