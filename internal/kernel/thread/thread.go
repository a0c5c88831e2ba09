package thread

import (
	"fmt"

	"github.com/kolkov/uniproc/internal/kernel/stack"
)

// Priority bounds.
const (
	// PriMin is the lowest priority.
	PriMin = 0
	// PriDefault is the priority of threads that do not ask for one.
	PriDefault = 31
	// PriMax is the highest priority.
	PriMax = 63
)

// TID identifies a thread. TIDs are assigned in creation order starting
// at 1 and are never reused within a Scheduler.
type TID uint32

// Status is the scheduling state of a thread.
type Status int

const (
	// StatusReady means the thread is waiting for the CPU.
	StatusReady Status = iota
	// StatusRunning means the thread owns the CPU.
	StatusRunning
	// StatusBlocked means the thread waits for an Unblock.
	StatusBlocked
	// StatusDying means the thread has finished.
	StatusDying
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusBlocked:
		return "blocked"
	case StatusDying:
		return "dying"
	default:
		return "unknown"
	}
}

// LockRef is the view of a lock that donation needs: who holds it and the
// highest priority among its holder and waiters.
type LockRef interface {
	// Holder returns the owning thread, or nil if the lock is free.
	Holder() *Thread

	// EffectivePriority returns the highest priority of any thread holding
	// or waiting for the lock.
	EffectivePriority() int

	// Donate raises the effective priority to p if p is higher.
	Donate(p int)

	// Recompute resets the effective priority to the higher of base and
	// the highest current priority among the waiters, and returns it.
	Recompute(base int) int
}

// Thread is a kernel thread.
//
// The donation fields are only written with interrupts off, either by the
// thread itself (HeldLocks, AwaitedLock) or through the scheduler's
// SetPriorityDonation message (Priority, OriginalPriority).
//
// Invariants after every acquire and release:
//
//	Priority >= OriginalPriority
//	Priority == max(OriginalPriority, HeldLocks[i].EffectivePriority())
type Thread struct {
	// ID is the thread identifier.
	ID TID

	// Name is used in traces and error messages.
	Name string

	// Priority is the current scheduling priority, possibly donated.
	Priority int

	// OriginalPriority is the priority the thread asked for, before any
	// donation.
	OriginalPriority int

	// HeldLocks are the locks this thread owns, highest effective
	// priority first.
	HeldLocks []LockRef

	// AwaitedLock is the lock this thread is blocked acquiring, or nil.
	AwaitedLock LockRef

	status    Status
	fn        func() error
	wake      chan struct{}
	blockedAt stack.ID
}

// Status returns the scheduling state.
func (t *Thread) Status() Status {
	return t.status
}

// String returns "name(tid)".
func (t *Thread) String() string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%d)", t.Name, t.ID)
}

// BlockedAt returns the call site outside the kernel packages where the
// thread last blocked, or "" if it never blocked.
func (t *Thread) BlockedAt() string {
	st := stack.Lookup(t.blockedAt)
	if st == nil {
		return ""
	}
	return st.Site(kernelPkgPrefix)
}

const kernelPkgPrefix = "github.com/kolkov/uniproc/internal/kernel/"

func validPriority(p int) bool {
	return p >= PriMin && p <= PriMax
}
