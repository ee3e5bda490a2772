package formz

// Field is a terminal node holding a single scalar or opaque value.
type Field struct {
	nodeCore
	value    *Cell[any]
	resource Resource
}

func newField(f *Form, spec *FieldSpec) *Field {
	fld := &Field{
		value:    newCell[any](f.sched, spec.Value),
		resource: spec.Resource,
	}
	fld.nodeCore = nodeCore{nodeBase: newNodeBase(f, spec.Value), self: fld}
	if spec.Disabled {
		fld.disabled.SetSilent(true)
	}
	return fld
}

// Kind returns KindField.
func (f *Field) Kind() NodeKind { return KindField }

// GetValue returns a non-subscribing snapshot of the field's value.
func (f *Field) GetValue() any {
	f.form.mu.Lock()
	defer f.form.mu.Unlock()
	return f.value.Peek()
}

// SetValue replaces the field's value, notifies observers, marks the field
// dirty and re-runs its validators. WithoutEvents suppresses all of that
// except the write itself; OnlySelf skips ancestor revalidation.
func (f *Field) SetValue(v any, opts ...SetOption) {
	f.form.do(func() { f.form.setFieldValue(f, v, applySetOpts(opts)) })
}

// ValueCell exposes the field's value cell for UI bindings that want to
// subscribe directly rather than poll.
//
// The cell is not locked against the form. Call Subscribe from the same
// goroutine that mutates the form, and before or between mutations, never
// concurrently with one.
func (f *Field) ValueCell() *Cell[any] { return f.value }

// Resource returns the option-data loader attached to the field, or nil.
func (f *Field) Resource() Resource { return f.resource }

// ValueOf returns a field value coerced to T. The second return is false
// when the node is not a field or the value is not a T.
func ValueOf[T any](n Node) (T, bool) {
	var zero T
	f, ok := n.(*Field)
	if !ok {
		return zero, false
	}
	v, ok := f.GetValue().(T)
	if !ok {
		return zero, false
	}
	return v, true
}
