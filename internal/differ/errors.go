package differ

import (
	"context"
	"errors"
)

var (
	// ErrTimeout means the comparison ran past its deadline. No diff is
	// available; it does not mean the documents are equal.
	ErrTimeout = errors.New("comparison timed out")
	// ErrTooLarge means the distance table would exceed the configured cell
	// limit, so the comparison was not attempted.
	ErrTooLarge = errors.New("documents too large to compare")
	// ErrInternal wraps a violated engine invariant.
	ErrInternal = errors.New("internal comparison error")
)

// Status is the outcome of one comparison as reported to callers and metrics.
type Status string

const (
	StatusOK       Status = "ok"
	StatusTimeout  Status = "timeout"
	StatusTooLarge Status = "too_large"
	StatusCanceled Status = "canceled"
	StatusInternal Status = "internal"
)

// StatusOf classifies an error returned by Compare.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, ErrTooLarge):
		return StatusTooLarge
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	default:
		return StatusInternal
	}
}
