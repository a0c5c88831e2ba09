// Package kernel is the public API of uniproc: the synchronization layer
// of a single-processor, priority-scheduled kernel running on a simulated
// CPU.
//
// # Overview
//
// A Machine runs kernel threads one at a time. Each thread is a Go
// function; only the thread holding the CPU executes, and control passes
// between threads only when a thread blocks, yields, exits, or is
// preempted by a higher-priority thread. Disabling interrupts is the only
// way to make a sequence of steps atomic.
//
// On top of the machine the package provides:
//
//   - Semaphore: counting semaphore. Down blocks while the value is zero;
//     Up wakes the highest-priority waiter.
//   - Lock: non-recursive lock built on a semaphore of value 1. A thread
//     that blocks on a held lock donates its priority to the holder, and
//     the donation follows chains of lock waits.
//   - Condition: Mesa-style condition variable used together with a Lock.
//
// Waiters are always woken in priority order, ties in arrival order, using
// the priorities current at wake time.
//
// # Quick Start
//
//	m := kernel.NewMachine()
//	l := kernel.NewLock(m)
//
//	m.Spawn("low", 10, func() error {
//		l.Acquire()
//		m.Spawn("high", 40, func() error {
//			l.Acquire() // donates 40 to "low"
//			l.Release()
//			return nil
//		})
//		l.Release() // drops back to 10, "high" runs
//		return nil
//	})
//	if err := m.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Errors
//
// Misuse of a primitive (blocking in interrupt context, acquiring a lock
// twice, releasing a lock held by another thread, using a condition
// variable without its lock) halts the machine. Run then returns an error
// that matches ErrAssertion and unwraps to *AssertionError. Run returns
// ErrDeadlock when every remaining thread is blocked.
//
// # Tracing
//
// WithTrace attaches a Sink that receives every scheduling event (spawn,
// run, block, unblock, yield, priority change, exit, interrupt, note). A
// Recorder keeps them in memory.
package kernel
