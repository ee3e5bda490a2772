package formz

import "github.com/zoobzio/capitan"

// Field keys for form events.
var (
	// KeyPath is the path of the node an event concerns.
	KeyPath = capitan.NewStringKey("path")

	// KeyCode is a validation error code.
	KeyCode = capitan.NewStringKey("code")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyEpoch is the value epoch an asynchronous check was issued for.
	KeyEpoch = capitan.NewIntKey("epoch")

	// KeyCount is an item count for structural events.
	KeyCount = capitan.NewIntKey("count")

	// KeyFieldCount is the number of fields in a constructed tree.
	KeyFieldCount = capitan.NewIntKey("field_count")

	// KeyDebounce is the configured debounce duration.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeyBehavior is the kind of a behavior rule.
	KeyBehavior = capitan.NewStringKey("behavior")

	// KeyOldStatus is the status before a transition.
	KeyOldStatus = capitan.NewStringKey("old_status")

	// KeyNewStatus is the status after a transition.
	KeyNewStatus = capitan.NewStringKey("new_status")
)
