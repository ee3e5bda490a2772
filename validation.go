package formz

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// ValidationContext gives a validator read access to where it runs and the
// current document snapshot, for rules that look sideways at other fields.
type ValidationContext struct {
	// Path is the concrete path of the node under validation.
	Path string

	// Document is the aggregate document value at validation time.
	Document any
}

// SyncValidator is a pure check running on the calling goroutine. It
// returns nil when the value passes, or a single validation entry.
type SyncValidator func(value any, vc ValidationContext) *ValidationError

// AsyncValidator is a potentially slow check (uniqueness lookups, server
// calls). A non-nil Go error is translated to a `checkFailed` validation
// entry: a failing validator must never leave the field pending.
type AsyncValidator func(ctx context.Context, value any, vc ValidationContext) (*ValidationError, error)

// TreeValidator checks cross-field invariants against the whole document
// and returns findings keyed by field path. Paths that no longer resolve
// are skipped, not errors.
type TreeValidator func(doc map[string]any) map[string][]ValidationError

// Condition gates a validator registration on another field's value.
type Condition struct {
	Path      string
	Predicate func(value any) bool
}

// validatorReg is the live record of one sync or async registration.
// Registrations address a field path, not a node, so they survive array
// reindexing: matching happens against the node's current address.
type validatorReg struct {
	id       int
	path     string
	segs     []Segment
	sync     SyncValidator
	async    AsyncValidator
	debounce time.Duration
	when     *Condition
	warn     bool
	pipeline pipz.Chainable[*CheckRequest]
}

// treeReg is the live record of one tree validator registration.
type treeReg struct {
	id       int
	fn       TreeValidator
	deps     [][]Segment
	depPaths []string
	applied  []Node // nodes holding this registration's findings
}

// CheckRequest carries one asynchronous check through the pipz pipeline,
// so middleware (timeout, retry, backoff) wraps the validator uniformly.
type CheckRequest struct {
	Path     string
	Value    any
	Document any
	Result   *ValidationError
}

// AsyncOption wraps the asynchronous validation pipeline with middleware.
type AsyncOption func(pipz.Chainable[*CheckRequest]) pipz.Chainable[*CheckRequest]

// ValidatorOption adjusts a single validator registration.
type ValidatorOption func(*validatorReg)

// WithDebounce sets the debounce window for an asynchronous registration.
// Bursts of value changes within the window coalesce into one check.
func WithDebounce(d time.Duration) ValidatorOption {
	return func(r *validatorReg) { r.debounce = d }
}

// When gates the registration: the validator only executes while the value
// at path satisfies pred. This implements "required only if X" without
// separate schema branches.
func When(path string, pred func(value any) bool) ValidatorOption {
	return func(r *validatorReg) { r.when = &Condition{Path: path, Predicate: pred} }
}

// AsWarning downgrades every finding of the registration to warning
// severity: surfaced to the UI, never submit-blocking.
func AsWarning() ValidatorOption {
	return func(r *validatorReg) { r.warn = true }
}

// asyncKey identifies an in-flight asynchronous check.
type asyncKey struct {
	node  *nodeBase
	regID int
}

// asyncRun is one scheduled asynchronous check in real mode.
type asyncRun struct {
	key    asyncKey
	reg    *validatorReg
	node   Node
	epoch  uint64
	value  any
	doc    any
	path   string
	ctx    context.Context
	cancel context.CancelFunc
}

// asyncJob is one queued asynchronous check in sync mode.
type asyncJob struct {
	key   asyncKey
	reg   *validatorReg
	node  Node
	epoch uint64
	value any
	doc   any
	path  string
}

// AddValidator registers a synchronous validator against a field path.
// The path may use the "[*]" wildcard to cover every item of an array.
// Registering against a path that does not address the tree is a
// configuration error.
func (f *Form) AddValidator(path string, v SyncValidator, opts ...ValidatorOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addValidatorLocked(path, v, opts)
}

func (f *Form) addValidatorLocked(path string, v SyncValidator, opts []ValidatorOption) error {
	reg, err := f.newReg(path, opts)
	if err != nil {
		return err
	}
	reg.sync = v
	f.validators = append(f.validators, reg)
	return nil
}

// AddAsyncValidator registers an asynchronous validator against a field
// path. Checks are debounced per registration and superseded checks are
// canceled; a stale result never overwrites a newer value's outcome.
func (f *Form) AddAsyncValidator(path string, v AsyncValidator, opts ...ValidatorOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addAsyncValidatorLocked(path, v, opts)
}

func (f *Form) addAsyncValidatorLocked(path string, v AsyncValidator, opts []ValidatorOption) error {
	reg, err := f.newReg(path, opts)
	if err != nil {
		return err
	}
	reg.async = v
	reg.pipeline = f.buildAsyncPipeline(reg)
	f.validators = append(f.validators, reg)
	return nil
}

// AddTreeValidator registers a cross-field validator. It re-runs whenever
// any of the listed dependency paths changes, and unconditionally on every
// tree-level Validate.
func (f *Form) AddTreeValidator(v TreeValidator, deps ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	reg := &treeReg{id: f.nextRegID(), fn: v, depPaths: deps}
	for _, dep := range deps {
		segs, err := ParsePath(dep)
		if err != nil {
			return err
		}
		if !f.regTargetExists(segs) {
			return configErr("register tree validator", dep, "no such field")
		}
		reg.deps = append(reg.deps, segs)
	}
	f.treeVals = append(f.treeVals, reg)
	return nil
}

func (f *Form) newReg(path string, opts []ValidatorOption) (*validatorReg, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if !f.regTargetExists(segs) {
		return nil, configErr("register validator", path, "no such field")
	}
	reg := &validatorReg{
		id:       f.nextRegID(),
		path:     path,
		segs:     segs,
		debounce: f.defaultDebounce,
	}
	for _, opt := range opts {
		opt(reg)
	}
	if reg.when != nil {
		wsegs, err := ParsePath(reg.when.Path)
		if err != nil {
			return nil, err
		}
		if !f.regTargetExists(wsegs) {
			return nil, configErr("register validator condition", reg.when.Path, "no such field")
		}
	}
	return reg, nil
}

// regTargetExists checks a registration path against the current tree.
// Wildcard segments are verified structurally: the prefix must resolve to
// an array; the remainder is checked against the first item when one
// exists.
func (f *Form) regTargetExists(segs []Segment) bool {
	current := Node(f.root)
	for _, seg := range segs {
		if seg.Key != "" {
			g, ok := current.(*Group)
			if !ok {
				return false
			}
			child, ok := g.child(seg.Key)
			if !ok {
				return false
			}
			current = child
		}
		if seg.Index == AnyIndex {
			a, ok := current.(*Array)
			if !ok {
				return false
			}
			if len(a.items) == 0 {
				// Cannot check deeper against an empty array; accept.
				return true
			}
			current = a.items[0]
			continue
		}
		if seg.Index >= 0 {
			a, ok := current.(*Array)
			if !ok {
				return false
			}
			item, ok := a.at(seg.Index)
			if !ok {
				return false
			}
			current = item
		}
	}
	return true
}

// buildAsyncPipeline wraps the registration's validator in the form-wide
// middleware stack.
func (f *Form) buildAsyncPipeline(reg *validatorReg) pipz.Chainable[*CheckRequest] {
	terminal := pipz.Apply(asyncCheckID, func(ctx context.Context, req *CheckRequest) (*CheckRequest, error) {
		ve, err := reg.async(ctx, req.Value, ValidationContext{Path: req.Path, Document: req.Document})
		if err != nil {
			return req, err
		}
		req.Result = ve
		return req, nil
	})
	var pipeline pipz.Chainable[*CheckRequest] = terminal
	for _, opt := range f.asyncOpts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// conditionHolds evaluates a registration gate. A dangling condition path
// reads as not holding.
func (f *Form) conditionHolds(c *Condition) bool {
	if c == nil {
		return true
	}
	node, ok, err := ResolvePath(f.root, c.Path)
	if err != nil || !ok {
		return false
	}
	return c.Predicate(aggregateValue(node))
}

// normalizeFinding applies registration-level severity adjustments.
func normalizeFinding(reg *validatorReg, ve ValidationError) ValidationError {
	if reg != nil && reg.warn {
		ve.Severity = SeverityWarning
	} else if ve.Severity == "" {
		ve.Severity = SeverityError
	}
	return ve
}

// runSyncValidators executes every synchronous registration matching the
// node's current address and replaces its sync error bucket. It reports
// whether the node passed (no error-severity findings). Lock held.
func (f *Form) runSyncValidators(n Node) bool {
	b := n.base()
	if b.disposed || b.disabled.Peek() {
		return true
	}
	segs := pathSegments(n)
	path := JoinSegments(segs)
	vc := ValidationContext{Path: path, Document: aggregateValue(f.root)}
	value := aggregateValue(n)

	var errs []ValidationError
	pass := true
	for _, reg := range f.validators {
		if reg.sync == nil || !segmentsMatch(reg.segs, segs) {
			continue
		}
		if !f.conditionHolds(reg.when) {
			continue
		}
		if ve := reg.sync(value, vc); ve != nil {
			finding := normalizeFinding(reg, *ve)
			errs = append(errs, finding)
			if finding.IsError() {
				pass = false
			}
		}
	}
	b.syncErrs = errs
	b.mergeErrors()
	return pass
}

// revalidateNode runs the full sync-then-async policy for one node: sync
// validators first, and only when they pass are asynchronous checks
// scheduled. A sync failure cancels and clears any async state; the async
// validator is never invoked for a locally-invalid value.
func (f *Form) revalidateNode(n Node) {
	b := n.base()
	if b.disposed || b.disabled.Peek() {
		return
	}
	old := statusOf(n)
	if f.runSyncValidators(n) {
		f.scheduleAsync(n)
	} else {
		f.cancelAsync(n)
		if len(b.asyncErrs) > 0 {
			b.asyncErrs = make(map[int][]ValidationError)
			b.mergeErrors()
		}
	}
	f.statusChanged(n, old)
}

// scheduleAsync starts (or queues, in sync mode) every asynchronous
// registration matching the node, superseding prior checks. Lock held.
func (f *Form) scheduleAsync(n Node) {
	b := n.base()
	segs := pathSegments(n)
	path := JoinSegments(segs)

	for _, reg := range f.validators {
		if reg.async == nil || !segmentsMatch(reg.segs, segs) {
			continue
		}
		if !f.conditionHolds(reg.when) {
			// A gated-off registration withdraws its findings.
			if setBucketErrors(b.asyncErrs, reg.id, nil) {
				b.mergeErrors()
			}
			continue
		}
		f.cancelOne(asyncKey{node: b, regID: reg.id})

		value := aggregateValue(n)
		doc := aggregateValue(f.root)
		key := asyncKey{node: b, regID: reg.id}

		if f.syncMode {
			f.syncQueue = append(f.syncQueue, &asyncJob{
				key: key, reg: reg, node: n, epoch: b.epoch,
				value: value, doc: doc, path: path,
			})
			b.pending.Set(true)
			continue
		}

		runCtx, cancel := context.WithCancel(f.ctx)
		run := &asyncRun{
			key: key, reg: reg, node: n, epoch: b.epoch,
			value: value, doc: doc, path: path,
			ctx: runCtx, cancel: cancel,
		}
		f.inflight[key] = run
		b.pending.Set(true)
		capitan.Emit(f.ctx, ValidationStarted,
			KeyPath.Field(path),
			KeyDebounce.Field(reg.debounce),
			KeyEpoch.Field(int(b.epoch)),
		)
		f.wg.Add(1)
		go f.executeAsync(run)
	}
}

// executeAsync waits out the debounce window, runs the pipeline, and hands
// the outcome back under the form lock. Runs outside the lock.
func (f *Form) executeAsync(run *asyncRun) {
	defer f.wg.Done()

	if run.reg.debounce > 0 {
		timer := f.clock.NewTimer(run.reg.debounce)
		select {
		case <-run.ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}
	}

	start := f.clock.Now()
	req := &CheckRequest{Path: run.path, Value: run.value, Document: run.doc}
	res, err := run.reg.pipeline.Process(run.ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return
	}
	f.sched.begin()
	defer f.sched.end()

	if current, ok := f.inflight[run.key]; !ok || current != run {
		// Canceled or superseded while executing; result is void.
		return
	}
	delete(f.inflight, run.key)

	if run.ctx.Err() != nil {
		return
	}
	if run.node.base().epoch != run.epoch {
		capitan.Emit(f.ctx, AsyncSuperseded,
			KeyPath.Field(run.path),
			KeyEpoch.Field(int(run.epoch)),
		)
		return
	}
	f.applyAsyncResult(run.key, run.reg, run.node, run.path, res, err, f.clock.Since(start))
}

// applyAsyncResult resolves one asynchronous check: the pending flag drops
// and the registration's bucket is replaced. A failed validator becomes a
// checkFailed finding so the field never stays pending. Lock held.
func (f *Form) applyAsyncResult(key asyncKey, reg *validatorReg, n Node, path string, res *CheckRequest, err error, took time.Duration) {
	b := n.base()
	old := statusOf(n)

	if !f.hasInflightFor(b) && !f.hasQueuedFor(b) {
		b.pending.Set(false)
	}

	var findings []ValidationError
	switch {
	case err != nil:
		f.setLastError(fmt.Errorf("async validator for %q: %w", path, err))
		findings = []ValidationError{normalizeFinding(reg, ValidationError{
			Code:    "checkFailed",
			Message: err.Error(),
		})}
		capitan.Emit(f.ctx, ValidationFailed,
			KeyPath.Field(path),
			KeyError.Field(err.Error()),
		)
		if f.metrics != nil {
			f.metrics.OnValidationFailure(path, took)
		}
	case res != nil && res.Result != nil:
		findings = []ValidationError{normalizeFinding(reg, *res.Result)}
		capitan.Emit(f.ctx, ValidationFailed,
			KeyPath.Field(path),
			KeyCode.Field(res.Result.Code),
		)
		if f.metrics != nil {
			f.metrics.OnValidationFailure(path, took)
		}
	default:
		capitan.Emit(f.ctx, ValidationSucceeded,
			KeyPath.Field(path),
		)
		if f.metrics != nil {
			f.metrics.OnValidationSuccess(path, took)
		}
	}

	if setBucketErrors(b.asyncErrs, reg.id, findings) {
		b.mergeErrors()
	}
	f.statusChanged(n, old)
}

// hasInflightFor reports remaining in-flight checks for a node. Lock held.
func (f *Form) hasInflightFor(b *nodeBase) bool {
	for key := range f.inflight {
		if key.node == b {
			return true
		}
	}
	return false
}

// hasQueuedFor reports queued sync-mode checks for a node. Lock held.
func (f *Form) hasQueuedFor(b *nodeBase) bool {
	for _, job := range f.syncQueue {
		if job.key.node == b {
			return true
		}
	}
	return false
}

// cancelOne voids a single in-flight or queued check. Lock held.
func (f *Form) cancelOne(key asyncKey) {
	if run, ok := f.inflight[key]; ok {
		run.cancel()
		delete(f.inflight, key)
		capitan.Emit(f.ctx, ValidationCanceled,
			KeyPath.Field(run.path),
		)
		if f.metrics != nil {
			f.metrics.OnValidationCanceled(run.path)
		}
	}
	for i := 0; i < len(f.syncQueue); {
		if f.syncQueue[i].key == key {
			f.syncQueue = append(f.syncQueue[:i], f.syncQueue[i+1:]...)
			continue
		}
		i++
	}
}

// cancelAsync voids every in-flight and queued check for a node and drops
// its pending flag. Cancellation has no error side effect: the node simply
// returns to its pre-validation status. Lock held.
func (f *Form) cancelAsync(n Node) {
	b := n.base()
	for key := range f.inflight {
		if key.node == b {
			f.cancelOne(key)
		}
	}
	for i := 0; i < len(f.syncQueue); {
		if f.syncQueue[i].key.node == b {
			f.syncQueue = append(f.syncQueue[:i], f.syncQueue[i+1:]...)
			continue
		}
		i++
	}
	if b.pending.Peek() {
		b.pending.Set(false)
	}
}

// Flush executes queued asynchronous checks inline. Only meaningful with
// WithSyncMode; the queue holds one entry per node and registration, the
// latest scheduled, so results are exactly those of the newest values.
func (f *Form) Flush(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return
	}
	f.sched.begin()
	defer f.sched.end()

	jobs := f.syncQueue
	f.syncQueue = nil
	for _, job := range jobs {
		b := job.node.base()
		if b.disposed || b.disabled.Peek() || b.epoch != job.epoch {
			if !f.hasQueuedFor(b) && !f.hasInflightFor(b) {
				b.pending.Set(false)
			}
			continue
		}
		start := f.clock.Now()
		req := &CheckRequest{Path: job.path, Value: job.value, Document: job.doc}
		res, err := job.reg.pipeline.Process(ctx, req)
		f.applyAsyncResult(job.key, job.reg, job.node, job.path, res, err, f.clock.Since(start))
	}
}

// runTreeValidator executes one cross-field registration against the
// current document and replaces its findings across affected nodes.
// Findings for dangling paths are skipped. Lock held.
func (f *Form) runTreeValidator(tr *treeReg) {
	doc, _ := aggregateValue(f.root).(map[string]any)
	result := tr.fn(doc)

	applied := make([]Node, 0, len(result))
	seen := make(map[*nodeBase]bool, len(result))
	for path, findings := range result {
		node, ok, err := ResolvePath(f.root, path)
		if err != nil || !ok || len(findings) == 0 {
			continue
		}
		normalized := make([]ValidationError, len(findings))
		for i, ve := range findings {
			normalized[i] = normalizeFinding(nil, ve)
		}
		b := node.base()
		old := statusOf(node)
		if setBucketErrors(b.treeErrs, tr.id, normalized) {
			b.mergeErrors()
		}
		f.statusChanged(node, old)
		applied = append(applied, node)
		seen[b] = true
	}

	// Withdraw findings from nodes this registration no longer flags.
	for _, prev := range tr.applied {
		b := prev.base()
		if b.disposed || seen[b] {
			continue
		}
		old := statusOf(prev)
		if setBucketErrors(b.treeErrs, tr.id, nil) {
			b.mergeErrors()
		}
		f.statusChanged(prev, old)
	}
	tr.applied = applied
}

// runTreeValidatorsAffectedBy re-runs every tree registration that depends
// on the changed node's path. Lock held.
func (f *Form) runTreeValidatorsAffectedBy(n Node) {
	segs := pathSegments(n)
	for _, tr := range f.treeVals {
		for _, dep := range tr.deps {
			if segmentsMatch(dep, segs) {
				f.runTreeValidator(tr)
				break
			}
		}
	}
}

// validateSubtree runs the full validation policy for a subtree: sync
// validators for every enabled node, then asynchronous checks inline for
// nodes that passed, then tree validators when called on the root. Returns
// true iff the subtree ends free of error-severity findings. Lock held.
func (f *Form) validateSubtree(ctx context.Context, n Node) bool {
	start := f.clock.Now()

	var nodes []Node
	var collect func(Node)
	collect = func(m Node) {
		if m.base().disabled.Peek() || m.base().disposed {
			return
		}
		nodes = append(nodes, m)
		for _, child := range childrenOf(m) {
			collect(child)
		}
	}
	collect(n)

	passed := make(map[*nodeBase]bool, len(nodes))
	for _, m := range nodes {
		passed[m.base()] = f.runSyncValidators(m)
	}

	for _, m := range nodes {
		b := m.base()
		if !passed[b] {
			continue
		}
		segs := pathSegments(m)
		path := JoinSegments(segs)
		for _, reg := range f.validators {
			if reg.async == nil || !segmentsMatch(reg.segs, segs) {
				continue
			}
			if !f.conditionHolds(reg.when) {
				if setBucketErrors(b.asyncErrs, reg.id, nil) {
					b.mergeErrors()
				}
				continue
			}
			// Inline execution supersedes any scheduled check.
			f.cancelOne(asyncKey{node: b, regID: reg.id})
			req := &CheckRequest{Path: path, Value: aggregateValue(m), Document: aggregateValue(f.root)}
			res, err := reg.pipeline.Process(ctx, req)
			f.applyAsyncResult(asyncKey{node: b, regID: reg.id}, reg, m, path, res, err, f.clock.Since(start))
		}
	}

	if n == Node(f.root) {
		for _, tr := range f.treeVals {
			f.runTreeValidator(tr)
		}
	}

	ok := !blockingOf(n)
	path := JoinSegments(pathSegments(n))
	if ok {
		capitan.Emit(f.ctx, ValidationSucceeded, KeyPath.Field(path))
		if f.metrics != nil {
			f.metrics.OnValidationSuccess(path, f.clock.Since(start))
		}
	} else {
		capitan.Emit(f.ctx, ValidationFailed, KeyPath.Field(path))
		if f.metrics != nil {
			f.metrics.OnValidationFailure(path, f.clock.Since(start))
		}
	}
	return ok
}

// Revalidate forces the validators registered for a path to re-run,
// independent of the value changing. Dangling paths are a no-op.
func (f *Form) Revalidate(path string) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}
	f.do(func() {
		if n, ok := Resolve(f.root, segs); ok {
			f.revalidateNode(n)
		}
	})
	return nil
}
