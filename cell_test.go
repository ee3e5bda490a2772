package formz

import "testing"

func TestCell_GetAndPeek(t *testing.T) {
	sched := newScheduler()
	c := newCell(sched, 42)

	if c.Get() != 42 {
		t.Errorf("expected 42, got %d", c.Get())
	}
	if c.Peek() != 42 {
		t.Errorf("expected 42 from Peek, got %d", c.Peek())
	}
}

func TestCell_SetNotifiesSubscriber(t *testing.T) {
	sched := newScheduler()
	c := newCell(sched, "a")

	var calls int
	c.Subscribe(func() { calls++ })

	c.Set("b")
	if calls != 1 {
		t.Errorf("expected 1 notification, got %d", calls)
	}
	if c.Peek() != "b" {
		t.Errorf("expected 'b', got %q", c.Peek())
	}
}

func TestCell_SetNotifiesOnEqualValue(t *testing.T) {
	sched := newScheduler()
	c := newCell(sched, "same")

	var calls int
	c.Subscribe(func() { calls++ })

	// Writes are events, not diffs: equal values still notify.
	c.Set("same")
	if calls != 1 {
		t.Errorf("expected notification on equal value, got %d", calls)
	}
}

func TestCell_SetSilentDoesNotNotify(t *testing.T) {
	sched := newScheduler()
	c := newCell(sched, 1)

	var calls int
	c.Subscribe(func() { calls++ })

	c.SetSilent(2)
	if calls != 0 {
		t.Errorf("expected no notification, got %d", calls)
	}
	if c.Peek() != 2 {
		t.Errorf("expected 2, got %d", c.Peek())
	}
}

func TestCell_Unsubscribe(t *testing.T) {
	sched := newScheduler()
	c := newCell(sched, 0)

	var calls int
	unsub := c.Subscribe(func() { calls++ })

	c.Set(1)
	unsub()
	c.Set(2)

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestScheduler_BatchCoalesces(t *testing.T) {
	sched := newScheduler()
	a := newCell(sched, 0)
	b := newCell(sched, 0)

	var runs int
	r := newReaction(sched, func() {
		a.Get()
		b.Get()
		runs++
	})
	r.run()
	if runs != 1 {
		t.Fatalf("expected establishing run, got %d", runs)
	}

	// Both dependencies change in one batch; the reaction runs once.
	sched.begin()
	a.Set(1)
	b.Set(2)
	sched.end()

	if runs != 2 {
		t.Errorf("expected 1 coalesced re-run, got %d total runs", runs)
	}
}

func TestReaction_RecollectsDependencies(t *testing.T) {
	sched := newScheduler()
	gate := newCell(sched, true)
	a := newCell(sched, "a")
	b := newCell(sched, "b")

	var runs int
	r := newReaction(sched, func() {
		runs++
		if gate.Get() {
			a.Get()
		} else {
			b.Get()
		}
	})
	r.run()

	// While gate is true, b is not a dependency.
	b.Set("b2")
	if runs != 1 {
		t.Fatalf("expected no re-run on unread cell, got %d runs", runs)
	}

	gate.Set(false)
	if runs != 2 {
		t.Fatalf("expected re-run on gate change, got %d runs", runs)
	}

	// Now b is a dependency and a is not.
	b.Set("b3")
	if runs != 3 {
		t.Errorf("expected re-run on b, got %d runs", runs)
	}
	a.Set("a2")
	if runs != 3 {
		t.Errorf("expected no re-run on dropped dependency, got %d runs", runs)
	}
}

func TestReaction_DisposeDetaches(t *testing.T) {
	sched := newScheduler()
	c := newCell(sched, 0)

	var runs int
	r := newReaction(sched, func() {
		c.Get()
		runs++
	})
	r.run()
	r.dispose()

	c.Set(1)
	if runs != 1 {
		t.Errorf("expected no runs after dispose, got %d", runs)
	}
}

func TestScheduler_CascadeSettles(t *testing.T) {
	sched := newScheduler()
	a := newCell(sched, 0)
	b := newCell(sched, 0)

	// a feeds b through a reaction; setting a settles in two waves.
	r := newReaction(sched, func() {
		b.Set(a.Get() * 2)
	})
	r.run()

	var bSeen int
	b.Subscribe(func() { bSeen = b.Peek() })

	a.Set(21)
	if bSeen != 42 {
		t.Errorf("expected cascade to settle at 42, got %d", bSeen)
	}
}

func TestScheduler_UnsettledCascadePanics(t *testing.T) {
	sched := newScheduler()
	a := newCell(sched, 0)
	b := newCell(sched, 0)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on unsettled propagation")
		}
	}()

	// Two reactions that keep retriggering each other.
	r1 := newReaction(sched, func() { b.Set(a.Get() + 1) })
	r2 := newReaction(sched, func() { a.Set(b.Get() + 1) })
	sched.begin()
	r1.run()
	r2.run()
	sched.end()
}
