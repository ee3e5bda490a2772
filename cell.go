package formz

// Cell is the minimal observable container underlying all node state.
// It holds a value, notifies registered observers on change, and supports
// non-subscribing reads via Peek.
//
// Dependency tracking is explicit: a read through Get registers the cell as
// a dependency only while a tracked computation (reaction) is running.
// Outside a tracked scope, Get behaves like Peek.
//
// Set always notifies, even when the new value equals the old one. Forms
// must support event-less writes, so suppression is explicit via SetSilent
// rather than an implicit equality short-circuit.
type Cell[T any] struct {
	sched *scheduler
	value T
	subs  []*subscription
}

// subscription is one registered observer of a cell. Observers are invoked
// through the scheduler so that bursts of same-tick changes coalesce into a
// single evaluation per observer.
type subscription struct {
	id int
	fn func()
}

// newCell creates a cell bound to a scheduler.
func newCell[T any](sched *scheduler, value T) *Cell[T] {
	return &Cell[T]{sched: sched, value: value}
}

// Get returns the current value. If a tracked computation is active, the
// cell is registered as one of its dependencies.
func (c *Cell[T]) Get() T {
	if r := c.sched.active; r != nil {
		r.addDep(c)
	}
	return c.value
}

// Peek returns the current value without registering a dependency.
func (c *Cell[T]) Peek() T {
	return c.value
}

// Set stores a new value and notifies all observers. Notification is
// coalesced: within a batch, each observer runs at most once per drain wave
// regardless of how many cells it depends on changed.
func (c *Cell[T]) Set(v T) {
	c.value = v
	c.sched.begin()
	for _, sub := range c.subs {
		c.sched.enqueue(sub)
	}
	c.sched.end()
}

// SetSilent stores a new value without notifying observers. Behaviors use
// silent writes for derived values to prevent feedback loops.
func (c *Cell[T]) SetSilent(v T) {
	c.value = v
}

// Subscribe registers an observer invoked after the cell's value changes.
// The returned function removes the observer. Subscribe mutates the
// observer list without a lock, so it must run on the goroutine that
// drives the owning form, not concurrently with form mutations.
func (c *Cell[T]) Subscribe(fn func()) func() {
	sub := &subscription{id: c.sched.nextID(), fn: fn}
	c.subs = append(c.subs, sub)
	return func() { c.unsubscribe(sub.id) }
}

// addSub registers an internal observer with a caller-supplied id,
// allowing reactions to deduplicate across their dependency set.
func (c *Cell[T]) addSub(sub *subscription) {
	c.subs = append(c.subs, sub)
}

func (c *Cell[T]) unsubscribe(id int) {
	for i, sub := range c.subs {
		if sub.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// observable is the non-generic handle a reaction keeps on its
// dependencies for subscription management.
type observable interface {
	addSub(sub *subscription)
	removeSub(id int)
}

func (c *Cell[T]) removeSub(id int) {
	c.unsubscribe(id)
}

// dropSubs removes every observer at once. Used when the owning node is
// disposed so no stale subscription can outlive the tree.
func (c *Cell[T]) dropSubs() {
	c.subs = nil
}

// maxDrainWaves bounds cascading re-evaluation. Exceeding it means two or
// more rules keep retriggering each other, a configuration mistake that
// must fail loudly rather than spin.
const maxDrainWaves = 1000

// scheduler coalesces observer notifications raised during a mutation into
// ordered drain waves at the end of the outermost operation. It also hosts
// the tracked-computation stack used for dependency registration.
//
// The scheduler is single-threaded by construction: every public entry
// point of a Form holds the form mutex before touching it.
type scheduler struct {
	depth  int
	ids    int
	active *reaction
	queue  []*subscription
	queued map[int]bool
}

func newScheduler() *scheduler {
	return &scheduler{queued: make(map[int]bool)}
}

func (s *scheduler) nextID() int {
	s.ids++
	return s.ids
}

// begin opens a batch. Batches nest; only the outermost end drains.
func (s *scheduler) begin() {
	s.depth++
}

// end closes a batch, draining queued observers when the outermost batch
// completes.
func (s *scheduler) end() {
	s.depth--
	if s.depth == 0 {
		s.drain()
	}
}

// enqueue schedules an observer for the next drain wave. Duplicate
// enqueues of the same observer within one wave are dropped.
func (s *scheduler) enqueue(sub *subscription) {
	if s.queued[sub.id] {
		return
	}
	s.queued[sub.id] = true
	s.queue = append(s.queue, sub)
}

// drain runs queued observers in registration order. Observers may enqueue
// further work; each additional wave runs after the current one completes.
func (s *scheduler) drain() {
	for wave := 0; len(s.queue) > 0; wave++ {
		if wave == maxDrainWaves {
			panic("formz: reactive propagation did not settle; check for mutually retriggering rules")
		}
		batch := s.queue
		s.queue = nil
		s.queued = make(map[int]bool)
		// Guard against re-entrant drains from observer bodies.
		s.depth++
		for _, sub := range batch {
			sub.fn()
		}
		s.depth--
	}
}

// reaction is a tracked computation: its body re-runs whenever any cell it
// read during its last run changes. Dependencies are re-collected on every
// run, so path-addressed rules naturally follow array reindexing.
type reaction struct {
	sub      *subscription
	body     func()
	deps     []observable
	sched    *scheduler
	disposed bool
}

func newReaction(sched *scheduler, body func()) *reaction {
	r := &reaction{body: body, sched: sched}
	r.sub = &subscription{id: sched.nextID(), fn: r.run}
	return r
}

// run clears the previous dependency set and executes the body inside a
// tracked scope, collecting the new one.
func (r *reaction) run() {
	if r.disposed {
		return
	}
	r.clearDeps()
	prev := r.sched.active
	r.sched.active = r
	defer func() { r.sched.active = prev }()
	r.body()
}

// addDep subscribes the reaction to a cell read during the current run.
func (r *reaction) addDep(c observable) {
	for _, d := range r.deps {
		if d == c {
			return
		}
	}
	r.deps = append(r.deps, c)
	c.addSub(r.sub)
}

func (r *reaction) clearDeps() {
	for _, d := range r.deps {
		d.removeSub(r.sub.id)
	}
	r.deps = nil
}

// dispose permanently detaches the reaction from all dependencies.
func (r *reaction) dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	r.clearDeps()
}
