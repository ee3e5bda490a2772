package formz

import "context"

// NodeKind discriminates the closed set of node variants. Path resolution
// and composite operations switch on the kind rather than probing shape.
type NodeKind int

const (
	// KindField is a terminal node holding a single scalar or opaque value.
	KindField NodeKind = iota
	// KindGroup holds a fixed mapping from string key to child node.
	KindGroup
	// KindArray holds an ordered, index-addressed list of child nodes.
	KindArray
)

// String returns the string representation of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindGroup:
		return "group"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Node is the public contract shared by Field, Group and Array nodes.
//
// All methods are safe for use by a single logical actor; a node belongs to
// exactly one Form and every operation synchronizes through it.
type Node interface {
	// Kind returns the closed variant tag of this node.
	Kind() NodeKind

	// Path returns the node's current path from the root, e.g.
	// "items[0].name". The root group's path is "".
	Path() string

	// GetValue returns a non-subscribing snapshot of the node's value.
	// Disabled children are excluded from Group and Array aggregates.
	GetValue() any

	// SetValue replaces the node's value. Group values are map[string]any,
	// Array values []any. See SetOption for event suppression.
	SetValue(v any, opts ...SetOption)

	// Reset restores the initial value and clears touched, dirty and all
	// validation errors, recursively for composite nodes.
	Reset()

	// ResetTo replaces the initial value and then resets.
	ResetTo(v any)

	// MarkAsTouched marks the node, and all descendants, as touched.
	MarkAsTouched()

	// MarkAsUntouched clears the touched flag, recursively.
	MarkAsUntouched()

	// MarkAsDirty marks the node, and all descendants, as dirty.
	MarkAsDirty()

	// MarkAsPristine clears the dirty flag, recursively.
	MarkAsPristine()

	// Disable excludes the node from value aggregation and validation.
	// The last value is retained, so Enable restores state without
	// re-entry. In-flight asynchronous validation is canceled.
	Disable()

	// Enable re-includes the node and re-runs its synchronous validators.
	Enable()

	// Touched reports whether the node or any descendant is touched.
	Touched() bool

	// Dirty reports whether the node or any descendant is dirty.
	Dirty() bool

	// Disabled reports whether the node itself is disabled.
	Disabled() bool

	// Visible reports the visibility flag maintained by ShowWhen rules.
	// Nodes start visible.
	Visible() bool

	// Pending reports whether asynchronous validation is in flight for the
	// node or any enabled descendant.
	Pending() bool

	// Errors returns the node's current validation entries, ordered:
	// synchronous, asynchronous, tree, manual.
	Errors() []ValidationError

	// Valid reports whether the node and all enabled descendants are free
	// of error-severity entries and not pending.
	Valid() bool

	// Invalid is the negation of Valid for enabled nodes.
	Invalid() bool

	// Status derives the node's summary status.
	Status() Status

	// Validate runs every validator registered for the node and its
	// enabled descendants: synchronous first, then, where those pass,
	// asynchronous validators inline (bypassing debounce), then tree
	// validators when called on the root. It returns true iff the subtree
	// has no error-severity entries afterwards. Warnings do not block.
	Validate(ctx context.Context) bool

	// SetErrors replaces the node's manual error bucket.
	SetErrors(errs []ValidationError)

	// ClearErrors removes all validation entries from the node.
	ClearErrors()

	// Dispose permanently detaches the node: in-flight validation is
	// canceled and every observer subscription the node created is
	// removed. A disposed node ignores further mutation.
	Dispose()

	// base exposes shared node state to the engine.
	base() *nodeBase
}

// SetOption adjusts how a SetValue call propagates.
type SetOption func(*setOpts)

type setOpts struct {
	emitEvent bool
	onlySelf  bool
}

// WithoutEvents suppresses observer notification for the write. Behaviors
// use this to publish derived values without re-triggering themselves.
func WithoutEvents() SetOption {
	return func(o *setOpts) { o.emitEvent = false }
}

// OnlySelf suppresses propagation to the parent's aggregate recompute; the
// node's own observers still fire.
func OnlySelf() SetOption {
	return func(o *setOpts) { o.onlySelf = true }
}

func applySetOpts(opts []SetOption) setOpts {
	o := setOpts{emitEvent: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// nodeBase carries the state cells and identity every node owns.
type nodeBase struct {
	form   *Form
	parent Node
	key    string // key within parent group, "" otherwise
	index  int    // index within parent array, -1 otherwise

	touched  *Cell[bool]
	dirty    *Cell[bool]
	disabled *Cell[bool]
	visible  *Cell[bool]
	pending  *Cell[bool]
	errs     *Cell[[]ValidationError]

	initial any

	// Error buckets by origin. The merged view in errs is recomputed
	// whenever a bucket changes. Async and tree buckets are keyed by
	// registration id so each registration replaces only its own
	// contribution.
	syncErrs   []ValidationError
	asyncErrs  map[int][]ValidationError
	treeErrs   map[int][]ValidationError
	manualErrs []ValidationError

	// epoch increments on every value change; asynchronous results carry
	// the epoch they were issued for and are discarded on mismatch.
	epoch uint64

	disposed bool
}

func newNodeBase(f *Form, initial any) nodeBase {
	return nodeBase{
		form:      f,
		index:     -1,
		touched:   newCell(f.sched, false),
		dirty:     newCell(f.sched, false),
		disabled:  newCell(f.sched, false),
		visible:   newCell(f.sched, true),
		pending:   newCell(f.sched, false),
		errs:      newCell(f.sched, []ValidationError(nil)),
		asyncErrs: make(map[int][]ValidationError),
		treeErrs:  make(map[int][]ValidationError),
		initial:   initial,
	}
}

// mergeErrors recomputes the public error list from the per-origin
// buckets. Within the async and tree buckets, entries order by
// registration id, so the merged view is deterministic.
func (b *nodeBase) mergeErrors() {
	var merged []ValidationError
	merged = append(merged, b.syncErrs...)
	for _, id := range sortedIDs(b.asyncErrs) {
		merged = append(merged, b.asyncErrs[id]...)
	}
	for _, id := range sortedIDs(b.treeErrs) {
		merged = append(merged, b.treeErrs[id]...)
	}
	merged = append(merged, b.manualErrs...)
	b.errs.Set(merged)
}

func sortedIDs(m map[int][]ValidationError) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// setBucketErrors replaces one registration's contribution to a bucket.
func setBucketErrors(bucket map[int][]ValidationError, regID int, errs []ValidationError) bool {
	if len(errs) == 0 {
		if _, seen := bucket[regID]; !seen {
			return false
		}
		delete(bucket, regID)
		return true
	}
	bucket[regID] = errs
	return true
}

func (b *nodeBase) clearErrorBuckets() {
	b.syncErrs = nil
	b.asyncErrs = make(map[int][]ValidationError)
	b.treeErrs = make(map[int][]ValidationError)
	b.manualErrs = nil
	b.mergeErrors()
}

// hasBlockingErrors reports whether any bucket holds an error-severity entry.
func (b *nodeBase) hasBlockingErrors() bool {
	for _, e := range b.errs.Peek() {
		if e.IsError() {
			return true
		}
	}
	return false
}

// pathSegments walks the parent chain collecting this node's address.
func pathSegments(n Node) []Segment {
	var segs []Segment
	for cur := n; cur != nil; {
		b := cur.base()
		if b.parent == nil {
			break
		}
		switch {
		case b.index >= 0:
			segs = append([]Segment{{Key: "", Index: b.index}}, segs...)
		default:
			segs = append([]Segment{{Key: b.key, Index: -1}}, segs...)
		}
		cur = b.parent
	}
	// Fold "items" + [0] pairs into single segments for canonical output.
	var folded []Segment
	for _, seg := range segs {
		if seg.Key == "" && seg.Index >= 0 && len(folded) > 0 && folded[len(folded)-1].Index < 0 {
			folded[len(folded)-1].Index = seg.Index
			continue
		}
		folded = append(folded, seg)
	}
	return folded
}

// childrenOf returns a node's ordered children; fields have none.
func childrenOf(n Node) []Node {
	switch t := n.(type) {
	case *Group:
		return t.ordered()
	case *Array:
		return append([]Node(nil), t.items...)
	default:
		return nil
	}
}

// eachField invokes fn for every field node in the subtree, depth-first.
func eachField(n Node, fn func(*Field)) {
	switch t := n.(type) {
	case *Field:
		fn(t)
	default:
		for _, child := range childrenOf(n) {
			eachField(child, fn)
		}
	}
}

// anyNode reports whether pred holds for n or any descendant.
func anyNode(n Node, pred func(Node) bool) bool {
	if pred(n) {
		return true
	}
	for _, child := range childrenOf(n) {
		if anyNode(child, pred) {
			return true
		}
	}
	return false
}

// anyEnabled reports whether pred holds for n or any enabled descendant.
// Disabled subtrees are skipped entirely.
func anyEnabled(n Node, pred func(Node) bool) bool {
	if n.base().disabled.Peek() {
		return false
	}
	if pred(n) {
		return true
	}
	for _, child := range childrenOf(n) {
		if anyEnabled(child, pred) {
			return true
		}
	}
	return false
}

// nodeCore implements the kind-independent part of the Node contract. Each
// concrete node embeds it with self pointing back at the node, so composite
// operations can recurse through the variant-specific children.
type nodeCore struct {
	nodeBase
	self Node
}

func (c *nodeCore) base() *nodeBase { return &c.nodeBase }

func (c *nodeCore) Path() string {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	return JoinSegments(pathSegments(c.self))
}

func (c *nodeCore) Touched() bool {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	return anyNode(c.self, func(n Node) bool { return n.base().touched.Peek() })
}

func (c *nodeCore) Dirty() bool {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	return anyNode(c.self, func(n Node) bool { return n.base().dirty.Peek() })
}

func (c *nodeCore) Disabled() bool {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	return c.disabled.Peek()
}

func (c *nodeCore) Visible() bool {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	return c.visible.Peek()
}

func (c *nodeCore) Pending() bool {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	return pendingOf(c.self)
}

func (c *nodeCore) Errors() []ValidationError {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	return append([]ValidationError(nil), c.errs.Peek()...)
}

func (c *nodeCore) Valid() bool {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	return validOf(c.self)
}

func (c *nodeCore) Invalid() bool {
	return !c.Valid()
}

func (c *nodeCore) Status() Status {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	return statusOf(c.self)
}

func (c *nodeCore) MarkAsTouched() {
	c.form.do(func() { markTouched(c.self, true) })
}

func (c *nodeCore) MarkAsUntouched() {
	c.form.do(func() { markTouched(c.self, false) })
}

func (c *nodeCore) MarkAsDirty() {
	c.form.do(func() { markDirty(c.self, true) })
}

func (c *nodeCore) MarkAsPristine() {
	c.form.do(func() { markDirty(c.self, false) })
}

func (c *nodeCore) Disable() {
	c.form.do(func() { c.form.disableNode(c.self) })
}

func (c *nodeCore) Enable() {
	c.form.do(func() { c.form.enableNode(c.self) })
}

func (c *nodeCore) Reset() {
	c.form.do(func() { c.form.resetNode(c.self) })
}

func (c *nodeCore) ResetTo(v any) {
	c.form.do(func() {
		if seeds, ok := v.([]any); ok {
			v = append([]any(nil), seeds...)
		}
		c.initial = v
		c.form.resetNode(c.self)
	})
}

func (c *nodeCore) Validate(ctx context.Context) bool {
	c.form.mu.Lock()
	defer c.form.mu.Unlock()
	c.form.sched.begin()
	ok := c.form.validateSubtree(ctx, c.self)
	c.form.sched.end()
	return ok
}

func (c *nodeCore) SetErrors(errs []ValidationError) {
	c.form.do(func() {
		old := statusOf(c.self)
		c.manualErrs = append([]ValidationError(nil), errs...)
		c.mergeErrors()
		c.form.statusChanged(c.self, old)
	})
}

func (c *nodeCore) ClearErrors() {
	c.form.do(func() {
		old := statusOf(c.self)
		c.clearErrorBuckets()
		c.form.statusChanged(c.self, old)
	})
}

func (c *nodeCore) Dispose() {
	c.form.do(func() { disposeNode(c.self) })
}

// statusOf derives a node's summary status. Disabled wins, then pending,
// then invalid.
func statusOf(n Node) Status {
	b := n.base()
	if b.disposed {
		return StatusDisabled
	}
	if b.disabled.Peek() {
		return StatusDisabled
	}
	if pendingOf(n) {
		return StatusPending
	}
	if blockingOf(n) {
		return StatusInvalid
	}
	return StatusValid
}

// pendingOf reports in-flight async validation anywhere in the enabled
// subtree.
func pendingOf(n Node) bool {
	return anyEnabled(n, func(m Node) bool { return m.base().pending.Peek() })
}

// blockingOf reports error-severity entries anywhere in the enabled subtree.
func blockingOf(n Node) bool {
	return anyEnabled(n, func(m Node) bool { return m.base().hasBlockingErrors() })
}

// validOf: a disabled node is vacuously valid; an enabled node is valid
// when its enabled subtree is free of blocking errors and not pending.
func validOf(n Node) bool {
	if n.base().disabled.Peek() {
		return true
	}
	return !blockingOf(n) && !pendingOf(n)
}

// markTouched sets the touched flag depth-first across the subtree.
func markTouched(n Node, v bool) {
	n.base().touched.Set(v)
	for _, child := range childrenOf(n) {
		markTouched(child, v)
	}
}

// markDirty sets the dirty flag depth-first across the subtree.
func markDirty(n Node, v bool) {
	n.base().dirty.Set(v)
	for _, child := range childrenOf(n) {
		markDirty(child, v)
	}
}

// disposeNode detaches the subtree: cancels in-flight validation and drops
// every cell observer, depth-first.
func disposeNode(n Node) {
	for _, child := range childrenOf(n) {
		disposeNode(child)
	}
	b := n.base()
	if b.disposed {
		return
	}
	b.disposed = true
	b.form.cancelAsync(n)
	for _, c := range nodeCells(n) {
		c.dropSubs()
	}
}

// nodeCells lists every cell a node owns, for disposal.
func nodeCells(n Node) []interface{ dropSubs() } {
	b := n.base()
	cells := []interface{ dropSubs() }{
		b.touched, b.dirty, b.disabled, b.visible, b.pending, b.errs,
	}
	if f, ok := n.(*Field); ok {
		cells = append(cells, f.value)
	}
	return cells
}
