package formz

// Array holds an ordered, index-addressed list of child nodes, all built
// from one item schema. Indices are contiguous 0..Len()-1; structural
// mutation re-indexes the remaining items and re-binds every path-addressed
// validator and behavior, because a path like "items[2]" now refers to a
// different node.
type Array struct {
	nodeCore
	items    []Node
	template any // item schema: *FieldSpec, GroupSpec or *ArraySpec
}

func newArray(f *Form, template any) *Array {
	a := &Array{template: template}
	a.nodeCore = nodeCore{nodeBase: newNodeBase(f, nil), self: a}
	return a
}

// Kind returns KindArray.
func (a *Array) Kind() NodeKind { return KindArray }

// Len returns the number of items.
func (a *Array) Len() int {
	a.form.mu.Lock()
	defer a.form.mu.Unlock()
	return len(a.items)
}

// At returns the item at index, or false when the index is out of range.
func (a *Array) At(index int) (Node, bool) {
	a.form.mu.Lock()
	defer a.form.mu.Unlock()
	return a.at(index)
}

// at is the lock-free lookup used by path resolution.
func (a *Array) at(index int) (Node, bool) {
	if index < 0 || index >= len(a.items) {
		return nil, false
	}
	return a.items[index], true
}

// GetValue returns the aggregate slice of enabled items' values.
func (a *Array) GetValue() any {
	a.form.mu.Lock()
	defer a.form.mu.Unlock()
	return aggregateValue(a)
}

// SetValue replaces the aggregate value. v must be a []any; the array is
// resized to match, instantiating new items from the item schema or
// removing surplus ones, then each item is written in order.
func (a *Array) SetValue(v any, opts ...SetOption) {
	a.form.do(func() {
		setNodeValue(a, v, applySetOpts(opts))
	})
}

// PatchValue writes the provided values to existing items by index without
// resizing; values beyond the current length are ignored.
func (a *Array) PatchValue(partial []any, opts ...SetOption) {
	a.form.do(func() {
		o := applySetOpts(opts)
		for i, v := range partial {
			if i >= len(a.items) {
				break
			}
			setNodeValue(a.items[i], v, o)
		}
	})
}

// Push appends a new item built from the item schema. When v is non-nil it
// becomes the item's value. The new node is returned.
func (a *Array) Push(v any) Node {
	var item Node
	a.form.do(func() {
		item = a.instantiate()
		a.items = append(a.items, item)
		a.reindex()
		if v != nil {
			setNodeValue(item, v, setOpts{emitEvent: true})
		}
		a.form.arrayRestructured(a)
	})
	return item
}

// Insert creates a new item at index, shifting later items up. Inserting at
// Len() is equivalent to Push. Out-of-range indices are a caller error.
func (a *Array) Insert(index int, v any) (Node, error) {
	var item Node
	var err error
	a.form.do(func() {
		if index < 0 || index > len(a.items) {
			err = configErr("insert", JoinSegments(pathSegments(a.self)), "index %d out of range [0,%d]", index, len(a.items))
			return
		}
		item = a.instantiate()
		a.items = append(a.items, nil)
		copy(a.items[index+1:], a.items[index:])
		a.items[index] = item
		a.reindex()
		if v != nil {
			setNodeValue(item, v, setOpts{emitEvent: true})
		}
		a.form.arrayRestructured(a)
	})
	return item, err
}

// RemoveAt destroys the item at index together with its subscriptions and
// shifts later items down.
func (a *Array) RemoveAt(index int) error {
	var err error
	a.form.do(func() {
		if index < 0 || index >= len(a.items) {
			err = configErr("remove", JoinSegments(pathSegments(a.self)), "index %d out of range [0,%d)", index, len(a.items))
			return
		}
		removed := a.items[index]
		a.items = append(a.items[:index], a.items[index+1:]...)
		disposeNode(removed)
		a.reindex()
		a.form.arrayRestructured(a)
	})
	return err
}

// Move relocates the item at from to position to, shifting items between.
func (a *Array) Move(from, to int) error {
	var err error
	a.form.do(func() {
		n := len(a.items)
		if from < 0 || from >= n || to < 0 || to >= n {
			err = configErr("move", JoinSegments(pathSegments(a.self)), "move %d -> %d out of range [0,%d)", from, to, n)
			return
		}
		if from == to {
			return
		}
		item := a.items[from]
		a.items = append(a.items[:from], a.items[from+1:]...)
		a.items = append(a.items, nil)
		copy(a.items[to+1:], a.items[to:])
		a.items[to] = item
		a.reindex()
		a.form.arrayRestructured(a)
	})
	return err
}

// Clear removes and destroys every item.
func (a *Array) Clear() {
	a.form.do(func() {
		for _, item := range a.items {
			disposeNode(item)
		}
		a.items = nil
		a.form.arrayRestructured(a)
	})
}

// resize grows or shrinks the array to n items. Lock held by caller.
func (a *Array) resize(n int) {
	changed := false
	for len(a.items) < n {
		item := a.instantiate()
		a.items = append(a.items, item)
		changed = true
	}
	for len(a.items) > n {
		last := a.items[len(a.items)-1]
		a.items = a.items[:len(a.items)-1]
		disposeNode(last)
		changed = true
	}
	if changed {
		a.reindex()
		a.form.arrayRestructured(a)
	}
}

// instantiate builds a fresh item from the item schema. The schema was
// validated at construction time, so this cannot fail.
func (a *Array) instantiate() Node {
	item, err := buildNode(a.form, a.template)
	if err != nil {
		panic("formz: array item schema became invalid: " + err.Error())
	}
	b := item.base()
	b.parent = a
	return item
}

// reindex restores contiguous indices after structural change.
func (a *Array) reindex() {
	for i, item := range a.items {
		item.base().index = i
	}
}
