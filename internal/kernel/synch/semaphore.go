package synch

import "github.com/kolkov/uniproc/internal/kernel/thread"

// Semaphore is a counting semaphore: a non-negative value with two atomic
// operations.
//
//   - Down ("P") waits for the value to become positive, then decrements it.
//   - Up ("V") increments the value and wakes the highest-priority waiter.
//
// A Semaphore must be initialized with Init or NewSemaphore before use and
// must not be discarded while threads wait on it.
type Semaphore struct {
	k        Kernel
	value    uint
	waiters  []waiter
	arrivals uint64
}

// NewSemaphore returns a semaphore initialized to value.
func NewSemaphore(k Kernel, value uint) *Semaphore {
	s := &Semaphore{}
	s.Init(k, value)
	return s
}

// Init sets the value and empties the wait queue.
func (s *Semaphore) Init(k Kernel, value uint) {
	assert(k != nil, "Semaphore.Init", "nil kernel")
	s.k = k
	s.value = value
	s.waiters = nil
	s.arrivals = 0
}

// Down waits for the value to become positive and decrements it.
//
// Down may sleep, so it must not be called from an interrupt handler. It
// may be called with interrupts off; the saved level is restored on
// return.
func (s *Semaphore) Down() {
	assert(!s.k.InContext(), "Semaphore.Down", "called from interrupt context")

	old := s.k.Disable()
	for s.value == 0 {
		s.arrivals++
		s.waiters = insertOrdered(s.waiters, waiter{t: s.k.Current(), seq: s.arrivals}, waiterPriority)
		s.k.Block()
	}
	s.value--
	s.k.SetLevel(old)
}

// TryDown decrements the value if it is positive. It never sleeps and may
// be called from an interrupt handler.
func (s *Semaphore) TryDown() bool {
	old := s.k.Disable()
	ok := s.value > 0
	if ok {
		s.value--
	}
	s.k.SetLevel(old)
	return ok
}

// Up increments the value and wakes the highest-priority waiter, if any.
//
// Waiters are re-sorted first because their priorities may have been
// raised by donation since they queued. Waiters of equal priority wake in
// the order they arrived.
//
// If the woken thread outranks the caller, the caller yields; from an
// interrupt handler the yield happens when the handler returns.
//
// Thread Safety: may be called from a kernel thread or from an interrupt
// handler. Interrupts are disabled while the queue is updated.
//
// Example:
//
//	m.Interrupt("disk", func() {
//		done.Up()
//	})
func (s *Semaphore) Up() {
	old := s.k.Disable()
	s.value++

	var woken *thread.Thread
	if len(s.waiters) > 0 {
		sortWaiters(s.waiters)
		var w waiter
		w, s.waiters = popFront(s.waiters)
		woken = w.t
		s.k.Unblock(woken)
	}

	if woken != nil && woken.Priority > s.k.Current().Priority {
		if s.k.InContext() {
			s.k.YieldOnReturn()
		} else {
			s.k.Yield()
		}
	}
	s.k.SetLevel(old)
}

// Value returns the current value.
func (s *Semaphore) Value() uint {
	return s.value
}

// Waiters returns the number of queued threads.
func (s *Semaphore) Waiters() int {
	return len(s.waiters)
}

// topPriority returns the highest current priority among the waiters, or
// thread.PriMin if there are none.
func (s *Semaphore) topPriority() int {
	p := thread.PriMin
	for _, w := range s.waiters {
		p = max(p, w.t.Priority)
	}
	return p
}
