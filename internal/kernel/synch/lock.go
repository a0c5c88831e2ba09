package synch

import (
	"slices"

	"github.com/kolkov/uniproc/internal/kernel/thread"
)

// Lock is a non-recursive mutual-exclusion lock with priority donation.
//
// A Lock is a semaphore with an initial value of 1 plus an owner: only the
// thread that acquired it may release it. While a thread waits for a held
// lock, it lends its priority to the holder (and down the chain of locks
// the holder is waiting for), so a low-priority holder cannot be starved
// by medium-priority threads while a high-priority thread waits.
type Lock struct {
	k        Kernel
	holder   *thread.Thread
	sema     Semaphore
	priority int
}

var _ thread.LockRef = (*Lock)(nil)

// NewLock returns an initialized, free lock.
func NewLock(k Kernel) *Lock {
	l := &Lock{}
	l.Init(k)
	return l
}

// Init makes the lock free.
func (l *Lock) Init(k Kernel) {
	assert(k != nil, "Lock.Init", "nil kernel")
	l.k = k
	l.holder = nil
	l.sema.Init(k, 1)
	l.priority = thread.PriMin
}

// Holder returns the owning thread, or nil. Only the answer for the
// running thread is reliable; see HeldByCurrent.
func (l *Lock) Holder() *thread.Thread {
	return l.holder
}

// EffectivePriority returns the highest priority of the holder and the
// waiters, as last recorded. It is meaningless while the lock is free.
func (l *Lock) EffectivePriority() int {
	return l.priority
}

// Donate raises the effective priority to p.
func (l *Lock) Donate(p int) {
	l.priority = max(l.priority, p)
}

// Recompute resets the effective priority to the higher of base and the
// highest current priority among the waiters, and returns it. The
// scheduler calls it on the holder's locks when the holder changes its own
// priority.
func (l *Lock) Recompute(base int) int {
	l.priority = max(base, l.sema.topPriority())
	return l.priority
}

// Acquire takes the lock, sleeping until it is available.
//
// If the lock is held, the caller's priority is donated along the chain of
// holders before sleeping: the holder runs at the caller's priority, and
// so does the holder of the lock that holder waits for, and so on. The
// walk stops at a holder that already runs at least as high or that is
// not waiting. When the caller finally takes the lock, it inherits the
// highest priority among the threads still queued behind it.
//
// Panics (*AssertionError):
//   - called from an interrupt handler
//   - the running thread already holds the lock
//   - the donation walk leads back to the caller (lock-wait cycle)
//
// Thread Safety: must be called from a kernel thread of the machine that
// created the lock. Interrupts are disabled for the duration.
//
// Example:
//
//	l.Acquire()
//	defer l.Release()
func (l *Lock) Acquire() {
	assert(!l.k.InContext(), "Lock.Acquire", "called from interrupt context")
	assert(!l.HeldByCurrent(), "Lock.Acquire", "lock already held by current thread")

	old := l.k.Disable()
	cur := l.k.Current()
	cur.AwaitedLock = l
	if l.holder == nil {
		l.priority = cur.Priority
	} else {
		l.donate(cur)
	}

	l.sema.Down()

	l.holder = cur
	cur.AwaitedLock = nil
	l.inherit(cur)
	cur.HeldLocks = insertOrdered(cur.HeldLocks, thread.LockRef(l), lockPriority)
	l.k.SetLevel(old)
}

// donate lends cur's priority down the chain of lock holders starting at
// l, stopping at a holder that already runs at least as high or that is
// not waiting for another lock.
func (l *Lock) donate(cur *thread.Thread) {
	l.Donate(cur.Priority)

	var lock thread.LockRef = l
	holder := l.holder
	for holder != nil {
		assert(holder != cur, "Lock.Acquire", "lock-wait cycle through "+cur.String())
		if cur.Priority <= holder.Priority {
			return
		}
		l.k.SetPriorityDonation(holder, cur.Priority, true)
		lock.Donate(cur.Priority)

		next := holder.AwaitedLock
		if next == nil {
			return
		}
		lock = next
		holder = next.Holder()
	}
}

// inherit recomputes the effective priority for a new holder from the
// threads still queued behind it, and donates it if it is higher.
func (l *Lock) inherit(cur *thread.Thread) {
	l.priority = cur.Priority
	if top := l.sema.topPriority(); top > cur.Priority {
		l.priority = top
		l.k.SetPriorityDonation(cur, top, true)
	}
}

// TryAcquire takes the lock if it is free and reports whether it did. It
// never sleeps and does not donate.
func (l *Lock) TryAcquire() bool {
	assert(!l.HeldByCurrent(), "Lock.TryAcquire", "lock already held by current thread")

	old := l.k.Disable()
	ok := l.sema.TryDown()
	if ok {
		cur := l.k.Current()
		l.holder = cur
		l.priority = cur.Priority
		cur.HeldLocks = insertOrdered(cur.HeldLocks, thread.LockRef(l), lockPriority)
	}
	l.k.SetLevel(old)
	return ok
}

// Release frees the lock, which the running thread must hold, and wakes
// the highest-priority waiter.
//
// The caller's priority then falls back to the highest priority among the
// waiters of the locks it still holds, but never below its own priority. If
// the woken waiter now outranks the caller, the caller yields before
// Release returns.
//
// Panics (*AssertionError):
//   - the running thread does not hold the lock
//
// Thread Safety: must be called from the holding kernel thread. Once the
// machine has halted, Release unwinds the caller instead, so a deferred
// Release in a thread that is being torn down is harmless.
func (l *Lock) Release() {
	assert(l.HeldByCurrent(), "Lock.Release", "lock not held by current thread")

	old := l.k.Disable()
	cur := l.k.Current()
	l.holder = nil
	l.sema.Up()

	cur.HeldLocks = slices.DeleteFunc(cur.HeldLocks, func(r thread.LockRef) bool {
		return r == thread.LockRef(l)
	})
	next := cur.OriginalPriority
	for _, r := range cur.HeldLocks {
		next = max(next, r.Recompute(cur.OriginalPriority))
	}
	sortByPriority(cur.HeldLocks, lockPriority)
	l.k.SetPriorityDonation(cur, next, true)
	l.k.SetLevel(old)
}

// HeldByCurrent reports whether the running thread holds the lock. Asking
// whether some other thread holds it would be racy.
func (l *Lock) HeldByCurrent() bool {
	return l.holder != nil && l.holder == l.k.Current()
}
