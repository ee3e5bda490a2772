package formz

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key form events.
type MetricsProvider interface {
	// OnFieldChange is called on every event-carrying field write.
	OnFieldChange(path string)

	// OnValidationSuccess is called when validation for a path resolves
	// with no blocking findings. Duration is the time taken end to end,
	// debounce window included.
	OnValidationSuccess(path string, duration time.Duration)

	// OnValidationFailure is called when validation resolves with
	// findings or the validator itself faults.
	OnValidationFailure(path string, duration time.Duration)

	// OnValidationCanceled is called when an in-flight check is voided
	// by a newer value or an explicit cancel.
	OnValidationCanceled(path string)

	// OnStatusChange is called when a node transitions between statuses.
	OnStatusChange(path string, from, to Status)

	// OnBehaviorRun is called each time a behavior rule evaluates.
	OnBehaviorRun(kind string)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnFieldChange(_ string)                        {}
func (NoOpMetricsProvider) OnValidationSuccess(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnValidationFailure(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnValidationCanceled(_ string)                 {}
func (NoOpMetricsProvider) OnStatusChange(_ string, _, _ Status)          {}
func (NoOpMetricsProvider) OnBehaviorRun(_ string)                        {}
