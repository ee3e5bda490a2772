package formz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultDebounce is the debounce applied to asynchronous validators when a
// registration does not choose its own window.
const DefaultDebounce = 0 * time.Millisecond

// Form owns a node tree and the registries that drive it: validators,
// behaviors, the scheduler and the clock. A form is a single logical
// document edited by one actor at a time; every public operation on the
// form or any of its nodes synchronizes through the form's mutex.
type Form struct {
	mu    sync.Mutex
	sched *scheduler
	clock clockz.Clock

	root    *Group
	metrics MetricsProvider
	history *errorRing

	syncMode        bool
	defaultDebounce time.Duration

	validators []*validatorReg
	treeVals   []*treeReg
	behaviors  []*behaviorReg
	computeDAG *depGraph

	// Registered computations indexed by target path, so a computed write
	// can push chained computations in dependency order.
	computeRules map[string][]*computeRule

	asyncOpts []AsyncOption

	// In-flight asynchronous validation, keyed by node and registration.
	inflight map[asyncKey]*asyncRun

	// Queued asynchronous jobs in sync mode, drained by Flush.
	syncQueue []*asyncJob

	regIDs    int
	lastError atomic.Pointer[error]
	disposed  bool

	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks async validator goroutines for orderly disposal.
	wg sync.WaitGroup
}

// config holds construction options for a Form.
type formConfig struct {
	clock           clockz.Clock
	metrics         MetricsProvider
	historySize     int
	syncMode        bool
	defaultDebounce time.Duration
	asyncOpts       []AsyncOption
}

// Option configures a Form at construction.
type Option func(*formConfig)

// WithClock sets a custom clock for debounce timers.
// Use this with clockz.FakeClock for deterministic debounce testing.
func WithClock(clock clockz.Clock) Option {
	return func(c *formConfig) { c.clock = clock }
}

// WithMetrics sets a metrics provider for observability integration.
func WithMetrics(provider MetricsProvider) Option {
	return func(c *formConfig) { c.metrics = provider }
}

// WithErrorHistorySize sets the number of recent asynchronous faults to
// retain. Use 0 (default) to only retain the most recent via LastError.
func WithErrorHistorySize(n int) Option {
	return func(c *formConfig) { c.historySize = n }
}

// WithSyncMode queues asynchronous validators instead of running them in
// goroutines; Flush executes them inline, making tests deterministic.
func WithSyncMode() Option {
	return func(c *formConfig) { c.syncMode = true }
}

// WithDefaultDebounce sets the debounce window applied to asynchronous
// validator registrations that do not choose their own.
func WithDefaultDebounce(d time.Duration) Option {
	return func(c *formConfig) { c.defaultDebounce = d }
}

// New builds a node tree from the schema descriptor, attaches the
// validators declared inline, and returns the owning Form. Structural
// errors in the descriptor are returned to the caller; nothing is partially
// registered on failure.
func New(spec GroupSpec, opts ...Option) (*Form, error) {
	cfg := &formConfig{
		clock:           clockz.RealClock,
		defaultDebounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	f := &Form{
		sched:           newScheduler(),
		clock:           cfg.clock,
		metrics:         cfg.metrics,
		history:         newErrorRing(cfg.historySize),
		syncMode:        cfg.syncMode,
		defaultDebounce: cfg.defaultDebounce,
		asyncOpts:       cfg.asyncOpts,
		computeDAG:      newDepGraph(),
		computeRules:    make(map[string][]*computeRule),
		inflight:        make(map[asyncKey]*asyncRun),
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())

	root, err := buildGroup(f, spec)
	if err != nil {
		f.cancel()
		return nil, err
	}
	f.root = root

	if err := registerSpecValidators(f, spec, ""); err != nil {
		f.cancel()
		return nil, err
	}

	capitan.Emit(f.ctx, FormBuilt,
		KeyFieldCount.Field(f.fieldCount()),
	)
	return f, nil
}

// Root returns the root group of the document tree.
func (f *Form) Root() *Group { return f.root }

// Get resolves a path to its node. Absence is an expected outcome and
// returns false. Malformed path syntax is a programming error and panics;
// use ResolvePath for an error-returning variant.
func (f *Form) Get(path string) (Node, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok, err := ResolvePath(f.root, path)
	if err != nil {
		panic(err)
	}
	return n, ok
}

// FieldAt resolves a path to a Field node.
func (f *Form) FieldAt(path string) (*Field, bool) {
	n, ok := f.Get(path)
	if !ok {
		return nil, false
	}
	fd, ok := n.(*Field)
	return fd, ok
}

// GroupAt resolves a path to a Group node.
func (f *Form) GroupAt(path string) (*Group, bool) {
	n, ok := f.Get(path)
	if !ok {
		return nil, false
	}
	g, ok := n.(*Group)
	return g, ok
}

// ArrayAt resolves a path to an Array node.
func (f *Form) ArrayAt(path string) (*Array, bool) {
	n, ok := f.Get(path)
	if !ok {
		return nil, false
	}
	a, ok := n.(*Array)
	return a, ok
}

// Value returns the aggregate document value, excluding disabled nodes.
func (f *Form) Value() map[string]any {
	v, _ := f.root.GetValue().(map[string]any)
	return v
}

// Errors returns a flattened snapshot of every node's current validation
// entries, keyed by path. Nodes without entries are omitted.
func (f *Form) Errors() map[string][]ValidationError {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]ValidationError)
	var walk func(n Node)
	walk = func(n Node) {
		if errs := n.base().errs.Peek(); len(errs) > 0 {
			out[JoinSegments(pathSegments(n))] = append([]ValidationError(nil), errs...)
		}
		for _, child := range childrenOf(n) {
			walk(child)
		}
	}
	walk(f.root)
	return out
}

// Validate runs every validator in the document, tree validators included,
// and reports whether the document is free of error-severity entries.
func (f *Form) Validate(ctx context.Context) bool {
	return f.root.Validate(ctx)
}

// Batch groups several mutations into one reactive tick: behaviors and
// observers triggered by any of the writes run once, after fn returns.
// fn calls back into public form methods, so the lock is released while
// it runs; the raised batch depth keeps inner writes from draining.
func (f *Form) Batch(fn func()) {
	f.mu.Lock()
	f.sched.begin()
	f.mu.Unlock()

	fn()

	f.mu.Lock()
	f.sched.end()
	f.mu.Unlock()
}

// LastError returns the most recent asynchronous fault, or nil.
func (f *Form) LastError() error {
	ptr := f.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns recent asynchronous faults, oldest first. Returns
// nil unless WithErrorHistorySize enabled retention.
func (f *Form) ErrorHistory() []error {
	return f.history.all()
}

// Dispose tears the form down: every behavior disposer runs, in-flight
// asynchronous validation is canceled, and every cell observer the tree
// created is removed. A disposed form ignores further mutation.
func (f *Form) Dispose() {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	f.disposed = true
	for _, br := range f.behaviors {
		br.disposeLocked()
	}
	disposeNode(f.root)
	f.cancel()
	f.mu.Unlock()

	f.wg.Wait()
	capitan.Emit(context.Background(), FormDisposed)
}

// do runs a mutation under the form mutex inside a scheduler batch, so all
// notifications raised by fn coalesce into one drain.
func (f *Form) do(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return
	}
	f.sched.begin()
	fn()
	f.sched.end()
}

func (f *Form) nextRegID() int {
	f.regIDs++
	return f.regIDs
}

func (f *Form) fieldCount() int {
	count := 0
	eachField(f.root, func(*Field) { count++ })
	return count
}

// setFieldValue is the single write path for field values. Lock held.
func (f *Form) setFieldValue(fd *Field, v any, o setOpts) {
	b := fd.base()
	if b.disposed {
		return
	}
	old := statusOf(fd)
	b.epoch++
	f.cancelAsync(fd)
	// Ancestor values change with the field, so their in-flight checks
	// are stale too.
	for p := b.parent; p != nil; p = p.base().parent {
		p.base().epoch++
		f.cancelAsync(p)
	}

	if !o.emitEvent {
		fd.value.SetSilent(v)
		return
	}

	b.dirty.Set(true)
	fd.value.Set(v)

	path := JoinSegments(pathSegments(fd))
	capitan.Emit(f.ctx, FieldChanged,
		KeyPath.Field(path),
		KeyEpoch.Field(int(b.epoch)),
	)
	if f.metrics != nil {
		f.metrics.OnFieldChange(path)
	}

	f.revalidateNode(fd)
	if !o.onlySelf {
		for p := b.parent; p != nil; p = p.base().parent {
			f.revalidateNode(p)
		}
	}
	f.runTreeValidatorsAffectedBy(fd)
	f.statusChanged(fd, old)
}

// disableNode removes a subtree from aggregation and validation. Values
// are retained so Enable restores state without re-entry.
func (f *Form) disableNode(n Node) {
	b := n.base()
	if b.disposed || b.disabled.Peek() {
		return
	}
	old := statusOf(n)
	b.disabled.Set(true)
	eachField(n, func(fd *Field) {
		f.cancelAsync(fd)
		fd.base().pending.Set(false)
	})
	f.statusChanged(n, old)
}

// enableNode re-includes a subtree and re-runs its synchronous validators
// so errors reflect the restored values immediately.
func (f *Form) enableNode(n Node) {
	b := n.base()
	if b.disposed || !b.disabled.Peek() {
		return
	}
	old := statusOf(n)
	b.disabled.Set(false)
	eachField(n, func(fd *Field) { f.runSyncValidators(fd) })
	if _, isField := n.(*Field); !isField {
		f.runSyncValidators(n)
	}
	f.statusChanged(n, old)
}

// resetNode restores the initial value and clears touched, dirty and every
// error bucket, recursively. The result is indistinguishable from a
// freshly constructed subtree.
func (f *Form) resetNode(n Node) {
	b := n.base()
	if b.disposed {
		return
	}
	old := statusOf(n)
	switch t := n.(type) {
	case *Field:
		b.epoch++
		f.cancelAsync(t)
		t.value.Set(b.initial)
	case *Group:
		for _, child := range t.ordered() {
			f.resetNode(child)
		}
	case *Array:
		seeds, _ := b.initial.([]any)
		t.resize(len(seeds))
		for i, item := range t.items {
			f.resetNode(item)
			if seeds[i] != nil {
				setNodeValue(item, seeds[i], setOpts{emitEvent: false})
			}
		}
	}
	b.touched.Set(false)
	b.dirty.Set(false)
	b.clearErrorBuckets()
	b.pending.Set(false)
	f.statusChanged(n, old)
}

// arrayRestructured re-binds path-addressed work after a structural array
// change: every remaining item's validators re-run against whatever now
// occupies each index, and every behavior re-resolves its paths.
func (f *Form) arrayRestructured(a *Array) {
	capitan.Emit(f.ctx, ArrayRestructured,
		KeyPath.Field(JoinSegments(pathSegments(a.self))),
		KeyCount.Field(len(a.items)),
	)
	eachField(a, func(fd *Field) {
		fd.base().epoch++
		f.cancelAsync(fd)
		f.revalidateNode(fd)
	})
	for _, tr := range f.treeVals {
		f.runTreeValidator(tr)
	}
	for _, br := range f.behaviors {
		if !br.disposed {
			f.sched.enqueue(br.reaction.sub)
		}
	}
}

// statusChanged emits observability hooks when a node's summary status
// moved. Lock held.
func (f *Form) statusChanged(n Node, old Status) {
	now := statusOf(n)
	if now == old {
		return
	}
	path := JoinSegments(pathSegments(n))
	capitan.Emit(f.ctx, NodeStatusChanged,
		KeyPath.Field(path),
		KeyOldStatus.Field(old.String()),
		KeyNewStatus.Field(now.String()),
	)
	if f.metrics != nil {
		f.metrics.OnStatusChange(path, old, now)
	}
}

// setLastError records an asynchronous fault for LastError/ErrorHistory.
func (f *Form) setLastError(err error) {
	e := err
	f.lastError.Store(&e)
	f.history.push(err)
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
