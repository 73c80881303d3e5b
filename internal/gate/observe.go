package gate

import (
	"context"
	"time"
)

// Recorder receives one observation per loader invocation.
type Recorder interface {
	ObserveGate(page, outcome string, elapsed time.Duration)
}

const (
	OutcomeRendered        = "rendered"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeRedirect        = "redirect"
	OutcomeNotFound        = "not_found"
	OutcomeError           = "error"
)

// Classify names the outcome of a result.
func Classify(res Result) string {
	switch {
	case res.Err != nil:
		return OutcomeError
	case res.NotFound:
		return OutcomeNotFound
	case res.unauthenticated:
		return OutcomeUnauthenticated
	case res.Redirect != nil:
		return OutcomeRedirect
	default:
		return OutcomeRendered
	}
}

// Observe reports each result of the wrapped loader to rec under page.
func Observe(page string, rec Recorder) Wrapper {
	return func(next Loader) Loader {
		if rec == nil {
			return next
		}
		return func(ctx context.Context, req *Request) Result {
			start := time.Now()
			res := next(ctx, req)
			rec.ObserveGate(page, Classify(res), time.Since(start))
			return res
		}
	}
}
