package formz

import "github.com/zoobzio/capitan"

// Form lifecycle signals.
var (
	// FormBuilt is emitted when a Form finishes construction.
	FormBuilt = capitan.NewSignal(
		"formz.form.built",
		"Form tree constructed",
	)

	// FormDisposed is emitted when a Form is torn down.
	FormDisposed = capitan.NewSignal(
		"formz.form.disposed",
		"Form disposed",
	)
)

// Node change signals.
var (
	// FieldChanged is emitted on every event-carrying field write.
	FieldChanged = capitan.NewSignal(
		"formz.field.changed",
		"Field value changed",
	)

	// ArrayRestructured is emitted when an array's item set changes.
	ArrayRestructured = capitan.NewSignal(
		"formz.array.restructured",
		"Array items added, removed or reordered",
	)

	// NodeStatusChanged is emitted when a node's summary status moves.
	NodeStatusChanged = capitan.NewSignal(
		"formz.node.status.changed",
		"Node status transition",
	)
)

// Validation signals.
var (
	// ValidationStarted is emitted when an asynchronous check is scheduled.
	ValidationStarted = capitan.NewSignal(
		"formz.validation.started",
		"Asynchronous validation scheduled",
	)

	// ValidationSucceeded is emitted when validation resolves clean.
	ValidationSucceeded = capitan.NewSignal(
		"formz.validation.succeeded",
		"Validation resolved with no blocking findings",
	)

	// ValidationFailed is emitted when validation resolves with findings
	// or the validator itself faults.
	ValidationFailed = capitan.NewSignal(
		"formz.validation.failed",
		"Validation resolved with findings",
	)

	// ValidationCanceled is emitted when an in-flight check is voided.
	ValidationCanceled = capitan.NewSignal(
		"formz.validation.canceled",
		"In-flight validation canceled",
	)

	// AsyncSuperseded is emitted when a completed check is discarded
	// because the value changed while it ran.
	AsyncSuperseded = capitan.NewSignal(
		"formz.validation.superseded",
		"Stale asynchronous result discarded",
	)
)

// Behavior signals.
var (
	// BehaviorRegistered is emitted when a behavior rule is installed.
	BehaviorRegistered = capitan.NewSignal(
		"formz.behavior.registered",
		"Behavior rule registered",
	)

	// BehaviorTriggered is emitted each time a behavior body runs.
	BehaviorTriggered = capitan.NewSignal(
		"formz.behavior.triggered",
		"Behavior rule evaluated",
	)

	// BehaviorCycleRefused is emitted when a computation registration
	// would close a dependency cycle.
	BehaviorCycleRefused = capitan.NewSignal(
		"formz.behavior.cycle.refused",
		"Computation cycle refused at registration",
	)
)

// Resource signals.
var (
	// ResourceLoadFailed is emitted when a resource load returns an error.
	ResourceLoadFailed = capitan.NewSignal(
		"formz.resource.load.failed",
		"Resource load failed",
	)
)
