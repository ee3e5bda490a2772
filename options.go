package formz

import (
	"context"
	"time"

	"github.com/zoobzio/pipz"
)

// Async pipeline options wrap every asynchronous validator with middleware
// for retry, timeout, circuit breaking, and other reliability patterns.
// They are form-wide: pass them to New alongside instance options.
//
// Per-registration tuning (debounce, conditions, severity) is handled via
// ValidatorOption on the individual registration instead.

var (
	asyncCheckID     = pipz.NewIdentity("formz:async-check", "Runs one asynchronous validation check")
	retryID          = pipz.NewIdentity("formz:retry", "Retries failed checks")
	backoffID        = pipz.NewIdentity("formz:backoff", "Retries failed checks with exponential backoff")
	timeoutID        = pipz.NewIdentity("formz:timeout", "Bounds check duration")
	fallbackID       = pipz.NewIdentity("formz:fallback", "Tries secondary processors after a failed check")
	circuitBreakerID = pipz.NewIdentity("formz:circuit-breaker", "Rejects checks while the circuit is open")
	middlewareID     = pipz.NewIdentity("formz:middleware", "Runs middleware processors ahead of the check")
	rateLimitID      = pipz.NewIdentity("formz:rate-limiter", "Throttles check throughput")
)

// -----------------------------------------------------------------------------
// Pipeline Options - Wrapping (WithAsync*)
// -----------------------------------------------------------------------------
// These options wrap the entire async pipeline, providing protection at the
// boundary. Use for resilience patterns that should apply to all checks.

// WithAsyncRetry wraps asynchronous validators with retry logic.
// Failed checks are retried immediately up to maxAttempts times.
// For exponential backoff between retries, use WithAsyncBackoff instead.
func WithAsyncRetry(maxAttempts int) Option {
	return func(c *formConfig) {
		c.asyncOpts = append(c.asyncOpts, func(p pipz.Chainable[*CheckRequest]) pipz.Chainable[*CheckRequest] {
			return pipz.NewRetry(retryID, p, maxAttempts)
		})
	}
}

// WithAsyncBackoff wraps asynchronous validators with exponential backoff
// retry logic. Failed checks are retried with increasing delays: baseDelay,
// 2*baseDelay, 4*baseDelay, etc.
func WithAsyncBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *formConfig) {
		c.asyncOpts = append(c.asyncOpts, func(p pipz.Chainable[*CheckRequest]) pipz.Chainable[*CheckRequest] {
			return pipz.NewBackoff(backoffID, p, maxAttempts, baseDelay)
		})
	}
}

// WithAsyncTimeout wraps asynchronous validators with a deadline. A check
// that outlives the deadline fails, which surfaces as a checkFailed finding
// rather than a permanently pending field.
func WithAsyncTimeout(d time.Duration) Option {
	return func(c *formConfig) {
		c.asyncOpts = append(c.asyncOpts, func(p pipz.Chainable[*CheckRequest]) pipz.Chainable[*CheckRequest] {
			return pipz.NewTimeout(timeoutID, p, d)
		})
	}
}

// WithAsyncFallback wraps asynchronous validators with fallback processors.
// If the primary check fails, each fallback is tried in order until one
// succeeds.
func WithAsyncFallback(fallbacks ...pipz.Chainable[*CheckRequest]) Option {
	return func(c *formConfig) {
		c.asyncOpts = append(c.asyncOpts, func(p pipz.Chainable[*CheckRequest]) pipz.Chainable[*CheckRequest] {
			all := append([]pipz.Chainable[*CheckRequest]{p}, fallbacks...)
			return pipz.NewFallback(fallbackID, all...)
		})
	}
}

// WithAsyncCircuitBreaker wraps asynchronous validators with circuit
// breaker protection. After 'failures' consecutive failures, the circuit
// opens and rejects further checks until 'recovery' time has passed.
//
// The circuit breaker has three states:
//   - Closed: Normal operation, checks pass through
//   - Open: After threshold failures, checks are rejected immediately
//   - Half-Open: After recovery timeout, one check is allowed to test recovery
func WithAsyncCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(c *formConfig) {
		c.asyncOpts = append(c.asyncOpts, func(p pipz.Chainable[*CheckRequest]) pipz.Chainable[*CheckRequest] {
			return pipz.NewCircuitBreaker(circuitBreakerID, p, failures, recovery)
		})
	}
}

// -----------------------------------------------------------------------------
// Pipeline Options - Middleware Composition
// -----------------------------------------------------------------------------

// WithAsyncMiddleware wraps the async pipeline with a sequence of
// processors. Processors execute in order, with the validator itself last.
//
// Use the Use* functions to create processors for common patterns, or
// provide custom pipz.Chainable implementations directly.
//
// Example:
//
//	var auditID = pipz.NewIdentity("app:audit", "Logs every check")
//
//	formz.New(schema,
//	    formz.WithAsyncMiddleware(
//	        formz.UseEffect(auditID, logFn),
//	    ),
//	    formz.WithAsyncTimeout(5*time.Second),
//	)
func WithAsyncMiddleware(processors ...pipz.Chainable[*CheckRequest]) Option {
	return func(c *formConfig) {
		c.asyncOpts = append(c.asyncOpts, func(p pipz.Chainable[*CheckRequest]) pipz.Chainable[*CheckRequest] {
			all := make([]pipz.Chainable[*CheckRequest], 0, len(processors)+1)
			all = append(all, processors...)
			all = append(all, p)
			return pipz.NewSequence(middlewareID, all...)
		})
	}
}

// -----------------------------------------------------------------------------
// Middleware Processors - Adapters (Use*)
// -----------------------------------------------------------------------------
// These create processors for use inside WithAsyncMiddleware. They observe
// or transform the check request as it flows through the pipeline.

// UseTransform creates a processor that transforms the check request.
// Cannot fail. Use for pure transformations that always succeed.
func UseTransform(id pipz.Identity, fn func(context.Context, *CheckRequest) *CheckRequest) pipz.Chainable[*CheckRequest] {
	return pipz.Transform(id, fn)
}

// UseApply creates a processor that can transform the check request and
// fail. Use for operations like enrichment or normalization that may
// produce errors.
func UseApply(id pipz.Identity, fn func(context.Context, *CheckRequest) (*CheckRequest, error)) pipz.Chainable[*CheckRequest] {
	return pipz.Apply(id, fn)
}

// UseEffect creates a processor that performs a side effect. The check
// request passes through unchanged. Use for logging, metrics, or
// notifications that should not affect the outcome.
func UseEffect(id pipz.Identity, fn func(context.Context, *CheckRequest) error) pipz.Chainable[*CheckRequest] {
	return pipz.Effect(id, fn)
}

// UseRateLimit wraps next with a token bucket limiter using the specified
// rate (tokens per second) and burst size. When tokens are exhausted,
// checks wait for availability before reaching next.
func UseRateLimit(rate float64, burst int, next pipz.Chainable[*CheckRequest]) pipz.Chainable[*CheckRequest] {
	return pipz.NewRateLimiter(rateLimitID, rate, burst, next)
}
