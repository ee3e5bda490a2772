package formz

// Group holds a fixed mapping from string key to child node. The key set is
// schema-driven and does not change at runtime.
type Group struct {
	nodeCore
	keys     []string
	children map[string]Node
}

func newGroup(f *Form) *Group {
	g := &Group{children: make(map[string]Node)}
	g.nodeCore = nodeCore{nodeBase: newNodeBase(f, nil), self: g}
	return g
}

// addChild wires a child under key; construction-time only.
func (g *Group) addChild(key string, child Node) {
	g.keys = append(g.keys, key)
	g.children[key] = child
	b := child.base()
	b.parent = g
	b.key = key
}

// Kind returns KindGroup.
func (g *Group) Kind() NodeKind { return KindGroup }

// Keys returns the group's child keys in schema order.
func (g *Group) Keys() []string {
	return append([]string(nil), g.keys...)
}

// Get returns the direct child registered under key.
func (g *Group) Get(key string) (Node, bool) {
	child, ok := g.children[key]
	return child, ok
}

// child is the lock-free lookup used by path resolution.
func (g *Group) child(key string) (Node, bool) {
	child, ok := g.children[key]
	return child, ok
}

// ordered returns children in schema order.
func (g *Group) ordered() []Node {
	out := make([]Node, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, g.children[k])
	}
	return out
}

// GetValue returns the aggregate map of enabled children's values.
// Disabled children are excluded but retain their values in memory.
func (g *Group) GetValue() any {
	g.form.mu.Lock()
	defer g.form.mu.Unlock()
	return aggregateValue(g)
}

// SetValue replaces the aggregate value. v must be a map[string]any; keys
// present are written to the matching children, keys absent are set to nil.
// Unknown keys are ignored (the key set is fixed). Use PatchValue for a
// sparse update that leaves absent keys untouched.
func (g *Group) SetValue(v any, opts ...SetOption) {
	g.form.do(func() {
		m, _ := v.(map[string]any)
		o := applySetOpts(opts)
		for _, key := range g.keys {
			val, present := m[key]
			if !present {
				val = nil
			}
			setNodeValue(g.children[key], val, o)
		}
	})
}

// PatchValue applies a sparse update: only keys present in partial are
// written; everything else keeps its value.
func (g *Group) PatchValue(partial map[string]any, opts ...SetOption) {
	g.form.do(func() {
		o := applySetOpts(opts)
		for _, key := range g.keys {
			if val, present := partial[key]; present {
				setNodeValue(g.children[key], val, o)
			}
		}
	})
}

// aggregateValue builds the snapshot for a subtree, excluding disabled
// nodes from Group and Array aggregates. Lock held by caller.
func aggregateValue(n Node) any {
	switch t := n.(type) {
	case *Field:
		return t.value.Peek()
	case *Group:
		out := make(map[string]any, len(t.keys))
		for _, k := range t.keys {
			child := t.children[k]
			if child.base().disabled.Peek() {
				continue
			}
			out[k] = aggregateValue(child)
		}
		return out
	case *Array:
		out := make([]any, 0, len(t.items))
		for _, item := range t.items {
			if item.base().disabled.Peek() {
				continue
			}
			out = append(out, aggregateValue(item))
		}
		return out
	default:
		return nil
	}
}

// setNodeValue dispatches a value write by node kind. Lock held by caller.
func setNodeValue(n Node, v any, o setOpts) {
	switch t := n.(type) {
	case *Field:
		t.form.setFieldValue(t, v, o)
	case *Group:
		m, _ := v.(map[string]any)
		for _, key := range t.keys {
			setNodeValue(t.children[key], m[key], o)
		}
	case *Array:
		list, _ := v.([]any)
		t.resize(len(list))
		for i, item := range t.items {
			setNodeValue(item, list[i], o)
		}
	}
}
