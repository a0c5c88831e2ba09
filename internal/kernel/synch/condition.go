package synch

// condWaiter is one thread waiting on a Condition: a private semaphore and
// the thread's priority when it started waiting.
type condWaiter struct {
	sema     Semaphore
	priority int
}

// Condition is a Mesa-style condition variable.
//
// Signaling only makes a waiter runnable; by the time it has reacquired
// the lock the condition may be false again, so waiters recheck it in a
// loop:
//
//	l.Acquire()
//	for !ready {
//		c.Wait(l)
//	}
//	l.Release()
//
// A Condition is used with a single Lock; one Lock may serve several
// Conditions.
//
// Waiters are woken in order of the priority they had when they called
// Wait. Donations received while waiting are not taken into account.
type Condition struct {
	k       Kernel
	waiters []*condWaiter
}

// NewCondition returns an initialized condition variable.
func NewCondition(k Kernel) *Condition {
	c := &Condition{}
	c.Init(k)
	return c
}

// Init empties the waiter list.
func (c *Condition) Init(k Kernel) {
	assert(k != nil, "Condition.Init", "nil kernel")
	c.k = k
	c.waiters = nil
}

// Wait atomically releases l and sleeps until signaled, then reacquires l
// before returning. The running thread must hold l, and Wait must not be
// called from an interrupt handler.
func (c *Condition) Wait(l *Lock) {
	assert(l != nil, "Condition.Wait", "nil lock")
	assert(!c.k.InContext(), "Condition.Wait", "called from interrupt context")
	assert(l.HeldByCurrent(), "Condition.Wait", "lock not held by current thread")

	w := &condWaiter{priority: c.k.Current().Priority}
	w.sema.Init(c.k, 0)

	old := c.k.Disable()
	c.waiters = insertOrdered(c.waiters, w, condPriority)
	c.k.SetLevel(old)

	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal wakes the waiter with the highest recorded priority, if any. The
// running thread must hold l.
func (c *Condition) Signal(l *Lock) {
	assert(l != nil, "Condition.Signal", "nil lock")
	assert(!c.k.InContext(), "Condition.Signal", "called from interrupt context")
	assert(l.HeldByCurrent(), "Condition.Signal", "lock not held by current thread")

	old := c.k.Disable()
	if len(c.waiters) > 0 {
		sortByPriority(c.waiters, condPriority)
		var w *condWaiter
		w, c.waiters = popFront(c.waiters)
		w.sema.Up()
	}
	c.k.SetLevel(old)
}

// Broadcast wakes every waiter, highest recorded priority first. The
// running thread must hold l.
func (c *Condition) Broadcast(l *Lock) {
	assert(l != nil, "Condition.Broadcast", "nil lock")

	for len(c.waiters) > 0 {
		c.Signal(l)
	}
}

// Waiters returns the number of waiting threads.
func (c *Condition) Waiters() int {
	return len(c.waiters)
}
