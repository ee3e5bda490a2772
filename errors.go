package formz

import (
	"fmt"
	"sync"
)

// Severity classifies a validation entry.
type Severity string

const (
	// SeverityError blocks submission and flips the owning node to invalid.
	SeverityError Severity = "error"

	// SeverityWarning is surfaced to the UI but does not block submission
	// and does not contribute to the invalid flag.
	SeverityWarning Severity = "warning"
)

// ValidationError is a single validation finding attached to a node.
// Validation errors are data, not Go errors: they accumulate on nodes and
// are never thrown or wrapped.
type ValidationError struct {
	// Code is a stable machine-readable identifier, e.g. "required".
	Code string

	// Message is the human-readable description.
	Message string

	// Params carries interpolation values for the message, e.g. {"min": 3}.
	Params map[string]any

	// Severity defaults to SeverityError when empty.
	Severity Severity
}

// IsError reports whether the entry blocks submission.
func (e ValidationError) IsError() bool {
	return e.Severity == "" || e.Severity == SeverityError
}

// ConfigError is a programmer mistake detected at registration time:
// malformed path syntax, a computeFrom cycle, or a registration against a
// nonexistent field. Configuration errors fail loudly and are never
// accumulated on nodes.
type ConfigError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("formz: %s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("formz: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// configErr builds a ConfigError.
func configErr(op, path string, format string, args ...any) *ConfigError {
	return &ConfigError{Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// errorRing is a thread-safe ring buffer for storing recent faults from
// asynchronous validators and resource loads.
type errorRing struct {
	mu     sync.RWMutex
	errors []error
	size   int
	head   int
	count  int
}

// newErrorRing creates a new error ring buffer with the given capacity.
// If size is 0, the ring buffer is disabled.
func newErrorRing(size int) *errorRing {
	if size <= 0 {
		return nil
	}
	return &errorRing{
		errors: make([]error, size),
		size:   size,
	}
}

// push adds an error to the ring buffer.
func (r *errorRing) push(err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors[r.head] = err
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// clear removes all errors from the ring buffer.
func (r *errorRing) clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.errors {
		r.errors[i] = nil
	}
	r.head = 0
	r.count = 0
}

// all returns all errors in the ring buffer, oldest first.
func (r *errorRing) all() []error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	result := make([]error, r.count)
	start := (r.head - r.count + r.size) % r.size
	for i := 0; i < r.count; i++ {
		result[i] = r.errors[(start+i)%r.size]
	}
	return result
}
