package formz

import (
	"context"
	"reflect"
	"time"

	"github.com/zoobzio/capitan"
)

// Disposer detaches a behavior registration. Calling it more than once is
// harmless.
type Disposer func()

// behaviorReg is the live record of one behavior registration. It keeps
// the reaction so structural array changes can re-enqueue every behavior
// for path re-resolution.
type behaviorReg struct {
	id       int
	kind     string
	reaction *reaction
	cleanup  func()
	disposed bool
}

// disposeLocked detaches the registration. Lock held.
func (br *behaviorReg) disposeLocked() {
	if br.disposed {
		return
	}
	br.disposed = true
	br.reaction.dispose()
	if br.cleanup != nil {
		br.cleanup()
	}
}

// computeRule is a registered computation, indexed by target path so
// chained computations can be pushed in dependency order after a silent
// write.
type computeRule struct {
	regID   int
	sources []string
	target  string
	fn      func(values []any) any
}

// behaviorPath parses and checks a behavior path. Behaviors address
// concrete nodes; wildcards are a registration mistake here.
func (f *Form) behaviorPath(op, path string) ([]Segment, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	for _, seg := range segs {
		if seg.Index == AnyIndex {
			return nil, configErr(op, path, "wildcard paths are not allowed in behaviors")
		}
	}
	if _, ok := Resolve(f.root, segs); !ok {
		return nil, configErr(op, path, "no such field")
	}
	return segs, nil
}

// observeValue reads a node's aggregate value through tracked cell reads,
// so the active reaction re-runs when any constituent value or enablement
// changes.
func observeValue(n Node) any {
	var walk func(m Node)
	walk = func(m Node) {
		b := m.base()
		b.disabled.Get()
		if fd, ok := m.(*Field); ok {
			fd.value.Get()
			return
		}
		for _, child := range childrenOf(m) {
			walk(child)
		}
	}
	walk(n)
	return aggregateValue(n)
}

// register wires a behavior body into the scheduler, runs it once to
// establish its dependency set, and returns the disposer. Callers hold no
// lock.
func (f *Form) register(kind, target string, body func(), cleanup func()) (*behaviorReg, Disposer) {
	reg := &behaviorReg{id: f.nextRegID(), kind: kind, cleanup: cleanup}
	reg.reaction = newReaction(f.sched, func() {
		capitan.Emit(f.ctx, BehaviorTriggered,
			KeyBehavior.Field(kind),
			KeyPath.Field(target),
		)
		if f.metrics != nil {
			f.metrics.OnBehaviorRun(kind)
		}
		body()
	})
	f.behaviors = append(f.behaviors, reg)

	f.sched.begin()
	reg.reaction.run()
	f.sched.end()

	capitan.Emit(f.ctx, BehaviorRegistered,
		KeyBehavior.Field(kind),
		KeyPath.Field(target),
	)
	return reg, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		reg.disposeLocked()
	}
}

// ComputeFrom derives target from the listed source paths: whenever any
// source changes, fn receives the current source values and its result is
// written to target without change events, so the write cannot feed back
// into the rule that produced it. Chains are allowed; a registration that
// would close a cycle is refused as a configuration error.
//
// A missing source at evaluation time (an array index that no longer
// exists) skips that evaluation; the rule rebinds when the index
// reappears.
func (f *Form) ComputeFrom(sources []string, target string, fn func(values []any) any) (Disposer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return nil, configErr("register computeFrom", target, "form is disposed")
	}

	if _, err := f.behaviorPath("register computeFrom", target); err != nil {
		return nil, err
	}
	for _, src := range sources {
		if _, err := f.behaviorPath("register computeFrom", src); err != nil {
			return nil, err
		}
	}

	f.computeDAG.addNode(target)
	var added [][2]string
	for _, src := range sources {
		f.computeDAG.addNode(src)
		if err := f.computeDAG.addEdge(src, target); err != nil {
			for _, e := range added {
				f.computeDAG.removeEdge(e[0], e[1])
			}
			return nil, err
		}
		added = append(added, [2]string{src, target})
	}
	if at := f.computeDAG.detectCycle(); at != "" {
		for _, e := range added {
			f.computeDAG.removeEdge(e[0], e[1])
		}
		capitan.Emit(f.ctx, BehaviorCycleRefused,
			KeyPath.Field(target),
			KeyError.Field("cycle involving "+at),
		)
		return nil, configErr("register computeFrom", target,
			"computation cycle involving %q", at)
	}

	rule := &computeRule{sources: sources, target: target, fn: fn}
	f.computeRules[target] = append(f.computeRules[target], rule)

	reg, disposer := f.register("computeFrom", target, func() {
		f.runComputeRule(rule)
	}, func() {
		rules := f.computeRules[target]
		for i, r := range rules {
			if r == rule {
				f.computeRules[target] = append(rules[:i], rules[i+1:]...)
				break
			}
		}
		for _, src := range sources {
			f.computeDAG.removeEdge(src, target)
		}
	})
	rule.regID = reg.id
	return disposer, nil
}

// runComputeRule evaluates one computation and pushes the result through
// any chained rules downstream of the target. Lock held, inside a batch.
func (f *Form) runComputeRule(rule *computeRule) {
	values := make([]any, len(rule.sources))
	for i, src := range rule.sources {
		n, ok, _ := ResolvePath(f.root, src)
		if !ok {
			return
		}
		values[i] = observeValue(n)
	}
	result := rule.fn(values)

	target, ok, _ := ResolvePath(f.root, rule.target)
	if !ok {
		return
	}
	setNodeValue(target, result, setOpts{emitEvent: false})

	// The write was silent, so downstream consequences are pushed
	// explicitly: the target's own validators and any chained rules, in
	// dependency order. Cycle refusal at registration bounds the
	// recursion.
	f.runSyncValidators(target)
	f.runTreeValidatorsAffectedBy(target)
	for _, next := range f.computeDAG.downstream(rule.target) {
		for _, chained := range f.computeRules[next] {
			f.runComputeRule(chained)
		}
	}
}

// ShowWhen toggles target's visibility from the predicate over the source
// values. A hidden node is also disabled, so its value disappears from
// aggregation and its validators stop running; showing it re-enables and
// re-runs synchronous validation.
func (f *Form) ShowWhen(target string, sources []string, pred func(values []any) bool) (Disposer, error) {
	return f.toggleWhen("showWhen", target, sources, pred, true)
}

// EnableWhen toggles target's enablement from the predicate over the
// source values, leaving visibility alone.
func (f *Form) EnableWhen(target string, sources []string, pred func(values []any) bool) (Disposer, error) {
	return f.toggleWhen("enableWhen", target, sources, pred, false)
}

func (f *Form) toggleWhen(kind, target string, sources []string, pred func(values []any) bool, visibility bool) (Disposer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return nil, configErr("register "+kind, target, "form is disposed")
	}
	if _, err := f.behaviorPath("register "+kind, target); err != nil {
		return nil, err
	}
	for _, src := range sources {
		if _, err := f.behaviorPath("register "+kind, src); err != nil {
			return nil, err
		}
	}

	_, disposer := f.register(kind, target, func() {
		values := make([]any, len(sources))
		for i, src := range sources {
			n, ok, _ := ResolvePath(f.root, src)
			if !ok {
				return
			}
			values[i] = observeValue(n)
		}
		on := pred(values)

		n, ok, _ := ResolvePath(f.root, target)
		if !ok {
			return
		}
		b := n.base()
		if visibility && b.visible.Peek() != on {
			b.visible.Set(on)
		}
		if on {
			f.enableNode(n)
		} else {
			f.disableNode(n)
		}
	}, nil)
	return disposer, nil
}

// resetOpts holds ResetWhen options.
type resetOpts struct {
	pred func(triggerValue any) bool
}

// ResetOption adjusts a ResetWhen registration.
type ResetOption func(*resetOpts)

// ResetIf restricts the reset to trigger values satisfying pred; without
// it, any change of the trigger resets the target.
func ResetIf(pred func(triggerValue any) bool) ResetOption {
	return func(o *resetOpts) { o.pred = pred }
}

// ResetWhen restores target to its initial value whenever trigger's value
// changes. The registration itself never resets: the value observed at
// registration is the baseline the first change is compared against.
func (f *Form) ResetWhen(target, trigger string, opts ...ResetOption) (Disposer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return nil, configErr("register resetWhen", target, "form is disposed")
	}
	if _, err := f.behaviorPath("register resetWhen", target); err != nil {
		return nil, err
	}
	if _, err := f.behaviorPath("register resetWhen", trigger); err != nil {
		return nil, err
	}
	var o resetOpts
	for _, opt := range opts {
		opt(&o)
	}

	first := true
	var prev any
	_, disposer := f.register("resetWhen", target, func() {
		tn, ok, _ := ResolvePath(f.root, trigger)
		if !ok {
			return
		}
		current := observeValue(tn)
		if first {
			first = false
			prev = current
			return
		}
		if reflect.DeepEqual(prev, current) {
			return
		}
		prev = current
		if o.pred != nil && !o.pred(current) {
			return
		}
		if tgt, ok, _ := ResolvePath(f.root, target); ok {
			f.resetNode(tgt)
		}
	}, nil)
	return disposer, nil
}

// copyOpts holds CopyFrom options.
type copyOpts struct {
	when      func(doc map[string]any) bool
	allFields bool
}

// CopyOption adjusts a CopyFrom registration.
type CopyOption func(*copyOpts)

// CopyWhen gates the mirror: while the guard over the document value does
// not hold, source changes leave the target untouched.
func CopyWhen(guard func(doc map[string]any) bool) CopyOption {
	return func(o *copyOpts) { o.when = guard }
}

// CopyAllFields copies every sub-field of a group individually, including
// disabled ones, instead of the aggregate value.
func CopyAllFields() CopyOption {
	return func(o *copyOpts) { o.allFields = true }
}

// CopyFrom mirrors source into target one way. The copy is a real write:
// target revalidates and reports dirty, exactly as if the user had typed
// the copied value.
func (f *Form) CopyFrom(target, source string, opts ...CopyOption) (Disposer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return nil, configErr("register copyFrom", target, "form is disposed")
	}
	if _, err := f.behaviorPath("register copyFrom", target); err != nil {
		return nil, err
	}
	if _, err := f.behaviorPath("register copyFrom", source); err != nil {
		return nil, err
	}
	var o copyOpts
	for _, opt := range opts {
		opt(&o)
	}

	_, disposer := f.register("copyFrom", target, func() {
		src, ok, _ := ResolvePath(f.root, source)
		if !ok {
			return
		}
		value := observeValue(src)
		if o.when != nil {
			doc, _ := aggregateValue(f.root).(map[string]any)
			if !o.when(doc) {
				return
			}
		}
		dst, ok, _ := ResolvePath(f.root, target)
		if !ok {
			return
		}
		if o.allFields {
			copyFields(f, src, dst)
			return
		}
		setNodeValue(dst, value, setOpts{emitEvent: true})
	}, nil)
	return disposer, nil
}

// copyFields mirrors matching fields between two subtrees, disabled fields
// included.
func copyFields(f *Form, src, dst Node) {
	switch s := src.(type) {
	case *Field:
		if d, ok := dst.(*Field); ok {
			f.setFieldValue(d, s.value.Peek(), setOpts{emitEvent: true})
		}
	case *Group:
		d, ok := dst.(*Group)
		if !ok {
			return
		}
		for _, key := range s.keys {
			sc, _ := s.child(key)
			if dc, ok := d.child(key); ok {
				copyFields(f, sc, dc)
			}
		}
	case *Array:
		d, ok := dst.(*Array)
		if !ok {
			return
		}
		d.resize(len(s.items))
		for i, item := range s.items {
			copyFields(f, item, d.items[i])
		}
		f.arrayRestructured(d)
	}
}

// watchOpts holds WatchField options.
type watchOpts struct {
	debounce  time.Duration
	immediate bool
}

// WatchOption adjusts a WatchField registration.
type WatchOption func(*watchOpts)

// WatchDebounce coalesces bursts of changes: the callback fires once per
// quiet window with the value before the burst and the latest value.
func WatchDebounce(d time.Duration) WatchOption {
	return func(o *watchOpts) { o.debounce = d }
}

// WatchImmediate invokes the callback once at registration with the
// current value; oldValue is nil for that call.
func WatchImmediate() WatchOption {
	return func(o *watchOpts) { o.immediate = true }
}

// WatchField invokes fn with the previous and new value whenever the field
// at path changes. It is the escape hatch for side effects (analytics,
// prefetch); derived values belong in ComputeFrom.
//
// Without debounce the callback runs on the mutating goroutine while the
// form is mid-operation, so it must not call back into the form; mutate
// asynchronously if a watch needs to write. Debounced callbacks run on
// their own goroutine after the quiet window and may use the form freely.
func (f *Form) WatchField(path string, fn func(oldValue, newValue any), opts ...WatchOption) (Disposer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return nil, configErr("register watchField", path, "form is disposed")
	}
	if _, err := f.behaviorPath("register watchField", path); err != nil {
		return nil, err
	}
	var o watchOpts
	for _, opt := range opts {
		opt(&o)
	}

	first := true
	var prev any
	var pendingOld any
	var pendingSet bool
	var cancelWait context.CancelFunc

	_, disposer := f.register("watchField", path, func() {
		n, ok, _ := ResolvePath(f.root, path)
		if !ok {
			return
		}
		current := observeValue(n)
		if first {
			first = false
			prev = current
			if o.immediate {
				fn(nil, current)
			}
			return
		}
		if reflect.DeepEqual(prev, current) {
			return
		}
		old := prev
		prev = current

		if o.debounce <= 0 {
			fn(old, current)
			return
		}

		// Debounced: remember the value before the burst, restart the
		// window, fire once when it lapses.
		if !pendingSet {
			pendingOld = old
			pendingSet = true
		}
		if cancelWait != nil {
			cancelWait()
		}
		ctx, cancel := context.WithCancel(f.ctx)
		cancelWait = cancel
		burstOld := pendingOld
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			timer := f.clock.NewTimer(o.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C():
			}
			f.mu.Lock()
			pendingSet = false
			cancelWait = nil
			latest := prev
			f.mu.Unlock()
			fn(burstOld, latest)
		}()
	}, func() {
		if cancelWait != nil {
			cancelWait()
		}
	})
	return disposer, nil
}

// RevalidateWhen re-runs target's validators whenever any trigger path
// changes, independent of target's own value. The registration itself
// does not validate; the first trigger change does.
func (f *Form) RevalidateWhen(target string, triggers ...string) (Disposer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return nil, configErr("register revalidateWhen", target, "form is disposed")
	}
	if _, err := f.behaviorPath("register revalidateWhen", target); err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		return nil, configErr("register revalidateWhen", target, "no trigger paths")
	}
	for _, trg := range triggers {
		if _, err := f.behaviorPath("register revalidateWhen", trg); err != nil {
			return nil, err
		}
	}

	first := true
	_, disposer := f.register("revalidateWhen", target, func() {
		for _, trg := range triggers {
			if n, ok, _ := ResolvePath(f.root, trg); ok {
				observeValue(n)
			}
		}
		if first {
			first = false
			return
		}
		if n, ok, _ := ResolvePath(f.root, target); ok {
			n.base().epoch++
			f.cancelAsync(n)
			f.revalidateNode(n)
		}
	}, nil)
	return disposer, nil
}
