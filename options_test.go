package formz

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/pipz"
)

var (
	testAuditID  = pipz.NewIdentity("test:audit", "Test audit effect")
	testTrimID   = pipz.NewIdentity("test:trim", "Test trim transform")
	testGateID   = pipz.NewIdentity("test:gate", "Test gate effect")
	testCachedID = pipz.NewIdentity("test:cached-answer", "Test cached answer")
	testMarkID   = pipz.NewIdentity("test:mark", "Test mark transform")
)

func flakyOnce(calls *atomic.Int32) AsyncValidator {
	return func(context.Context, any, ValidationContext) (*ValidationError, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient fault")
		}
		return nil, nil
	}
}

func TestWithAsyncRetry_RecoversTransientFault(t *testing.T) {
	var calls atomic.Int32
	form, _ := New(GroupSpec{"q": F("")}, WithSyncMode(), WithAsyncRetry(3))
	defer form.Dispose()

	form.AddAsyncValidator("q", flakyOnce(&calls))

	fd, _ := form.FieldAt("q")
	fd.SetValue("x")
	form.Flush(context.Background())

	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	if !fd.Valid() {
		t.Errorf("expected retried check to succeed, got %v", fd.Errors())
	}
}

func TestWithoutRetry_FaultSurfaces(t *testing.T) {
	var calls atomic.Int32
	form, _ := New(GroupSpec{"q": F("")}, WithSyncMode())
	defer form.Dispose()

	form.AddAsyncValidator("q", flakyOnce(&calls))

	fd, _ := form.FieldAt("q")
	fd.SetValue("x")
	form.Flush(context.Background())

	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", calls.Load())
	}
	errs := fd.Errors()
	if len(errs) != 1 || errs[0].Code != "checkFailed" {
		t.Errorf("expected checkFailed, got %v", errs)
	}
}

func TestWithAsyncTimeout_SlowCheckFails(t *testing.T) {
	form, _ := New(GroupSpec{"q": F("")}, WithSyncMode(), WithAsyncTimeout(20*time.Millisecond))
	defer form.Dispose()

	form.AddAsyncValidator("q", func(ctx context.Context, _ any, _ ValidationContext) (*ValidationError, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return nil, nil
		}
	})

	fd, _ := form.FieldAt("q")
	fd.SetValue("x")
	form.Flush(context.Background())

	errs := fd.Errors()
	if len(errs) != 1 || errs[0].Code != "checkFailed" {
		t.Errorf("expected timeout to surface as checkFailed, got %v", errs)
	}
	if fd.Pending() {
		t.Error("expected pending resolved despite timeout")
	}
}

func TestWithAsyncMiddleware_EffectObservesRequests(t *testing.T) {
	var observed []string
	form, _ := New(GroupSpec{"q": F("")},
		WithSyncMode(),
		WithAsyncMiddleware(
			UseEffect(testAuditID, func(_ context.Context, req *CheckRequest) error {
				observed = append(observed, req.Path)
				return nil
			}),
		),
	)
	defer form.Dispose()

	form.AddAsyncValidator("q", func(context.Context, any, ValidationContext) (*ValidationError, error) {
		return nil, nil
	})

	fd, _ := form.FieldAt("q")
	fd.SetValue("x")
	form.Flush(context.Background())

	if len(observed) != 1 || observed[0] != "q" {
		t.Errorf("expected middleware to see the check, got %v", observed)
	}
	if !fd.Valid() {
		t.Errorf("expected check unaffected, got %v", fd.Errors())
	}
}

func TestWithAsyncMiddleware_TransformRewritesValue(t *testing.T) {
	form, _ := New(GroupSpec{"q": F("")},
		WithSyncMode(),
		WithAsyncMiddleware(
			UseTransform(testTrimID, func(_ context.Context, req *CheckRequest) *CheckRequest {
				if s, ok := req.Value.(string); ok {
					req.Value = strings.TrimSpace(s)
				}
				return req
			}),
		),
	)
	defer form.Dispose()

	var seen any
	form.AddAsyncValidator("q", func(_ context.Context, value any, _ ValidationContext) (*ValidationError, error) {
		seen = value
		return nil, nil
	})

	fd, _ := form.FieldAt("q")
	fd.SetValue("  padded  ")
	form.Flush(context.Background())

	if seen != "padded" {
		t.Errorf("expected trimmed value in validator, got %q", seen)
	}
}

func TestWithAsyncMiddleware_FailingEffectFailsCheck(t *testing.T) {
	form, _ := New(GroupSpec{"q": F("")},
		WithSyncMode(),
		WithAsyncMiddleware(
			UseEffect(testGateID, func(context.Context, *CheckRequest) error {
				return errors.New("gate closed")
			}),
		),
	)
	defer form.Dispose()

	var called bool
	form.AddAsyncValidator("q", func(context.Context, any, ValidationContext) (*ValidationError, error) {
		called = true
		return nil, nil
	})

	fd, _ := form.FieldAt("q")
	fd.SetValue("x")
	form.Flush(context.Background())

	if called {
		t.Error("expected failing middleware to short-circuit the validator")
	}
	errs := fd.Errors()
	if len(errs) != 1 || errs[0].Code != "checkFailed" {
		t.Errorf("expected checkFailed, got %v", errs)
	}
}

func TestWithAsyncFallback_SecondaryAnswers(t *testing.T) {
	fallback := UseApply(testCachedID, func(_ context.Context, req *CheckRequest) (*CheckRequest, error) {
		req.Result = nil
		return req, nil
	})
	form, _ := New(GroupSpec{"q": F("")}, WithSyncMode(), WithAsyncFallback(fallback))
	defer form.Dispose()

	form.AddAsyncValidator("q", func(context.Context, any, ValidationContext) (*ValidationError, error) {
		return nil, errors.New("primary down")
	})

	fd, _ := form.FieldAt("q")
	fd.SetValue("x")
	form.Flush(context.Background())

	if !fd.Valid() {
		t.Errorf("expected fallback to answer, got %v", fd.Errors())
	}
	if form.LastError() != nil {
		t.Errorf("expected no surfaced fault, got %v", form.LastError())
	}
}

func TestUseRateLimit_FirstCheckWithinBurstIsImmediate(t *testing.T) {
	var marked atomic.Int32
	form, _ := New(GroupSpec{"q": F("")},
		WithSyncMode(),
		WithAsyncMiddleware(
			UseRateLimit(100, 10,
				UseTransform(testMarkID, func(_ context.Context, req *CheckRequest) *CheckRequest {
					marked.Add(1)
					return req
				}),
			),
		),
	)
	defer form.Dispose()

	form.AddAsyncValidator("q", func(context.Context, any, ValidationContext) (*ValidationError, error) {
		return nil, nil
	})

	fd, _ := form.FieldAt("q")
	fd.SetValue("x")
	start := time.Now()
	form.Flush(context.Background())

	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("expected check within burst to run immediately, took %v", d)
	}
	if marked.Load() != 1 {
		t.Errorf("expected inner processor to run once, got %d", marked.Load())
	}
	if !fd.Valid() {
		t.Errorf("expected check unaffected, got %v", fd.Errors())
	}
}

func TestWithDefaultDebounce_AppliesToRegistrations(t *testing.T) {
	form, _ := New(GroupSpec{"q": F("")}, WithSyncMode(), WithDefaultDebounce(75*time.Millisecond))
	defer form.Dispose()

	form.AddAsyncValidator("q", func(context.Context, any, ValidationContext) (*ValidationError, error) {
		return nil, nil
	})

	// In sync mode the debounce window is irrelevant to Flush; the
	// registration still records the form-wide default.
	if got := form.validators[0].debounce; got != 75*time.Millisecond {
		t.Errorf("expected default debounce recorded, got %v", got)
	}

	form.AddAsyncValidator("q", func(context.Context, any, ValidationContext) (*ValidationError, error) {
		return nil, nil
	}, WithDebounce(5*time.Millisecond))
	if got := form.validators[1].debounce; got != 5*time.Millisecond {
		t.Errorf("expected per-registration override, got %v", got)
	}
}
