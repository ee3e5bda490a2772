package formz

// Status represents the validation status of a node.
type Status int32

const (
	// StatusValid indicates the node and all enabled descendants have no
	// error-severity validation entries and no validation in flight.
	StatusValid Status = iota

	// StatusInvalid indicates the node or an enabled descendant carries at
	// least one error-severity validation entry.
	StatusInvalid

	// StatusPending indicates an asynchronous validation is in flight for
	// the node or an enabled descendant.
	StatusPending

	// StatusDisabled indicates the node is disabled. Disabled nodes are
	// excluded from aggregation and validation but retain their value.
	StatusDisabled
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusPending:
		return "pending"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
