package synch

import (
	"errors"
	"fmt"

	"github.com/kolkov/uniproc/internal/kernel/intr"
	"github.com/kolkov/uniproc/internal/kernel/thread"
)

// Kernel is what the primitives need from the scheduler and the interrupt
// controller.
type Kernel interface {
	// Current returns the running thread.
	Current() *thread.Thread

	// Block puts the running thread to sleep. Interrupts must be off.
	Block()

	// Unblock makes a blocked thread ready without preempting the caller.
	Unblock(t *thread.Thread)

	// Yield gives the CPU to the best ready thread.
	Yield()

	// YieldOnReturn asks for a yield once the running interrupt handler
	// returns.
	YieldOnReturn()

	// SetPriorityDonation sets t's priority; donation leaves the original
	// priority untouched.
	SetPriorityDonation(t *thread.Thread, priority int, donation bool)

	// Disable masks interrupts and returns the previous level.
	Disable() intr.Level

	// SetLevel restores a level returned by Disable.
	SetLevel(level intr.Level) intr.Level

	// InContext reports whether an interrupt handler is running.
	InContext() bool
}

var _ Kernel = (*thread.Scheduler)(nil)

// ErrAssertion is matched by every *AssertionError.
var ErrAssertion = errors.New("synch: assertion failed")

// AssertionError reports a violated kernel contract.
//
// Fields:
//   - Op: the operation that detected the violation ("Lock.Acquire")
//   - Msg: what was violated
type AssertionError struct {
	Op  string
	Msg string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("synch: %s: assertion failed: %s", e.Op, e.Msg)
}

// Unwrap lets errors.Is match ErrAssertion.
func (e *AssertionError) Unwrap() error {
	return ErrAssertion
}

// assert panics with an *AssertionError unless cond holds.
func assert(cond bool, op, msg string) {
	if !cond {
		panic(&AssertionError{Op: op, Msg: msg})
	}
}
