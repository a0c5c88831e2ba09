// Package thread implements kernel threads and a simulated uniprocessor
// scheduler for them.
//
// Every kernel thread is backed by a goroutine, but at most one of those
// goroutines executes kernel code at any instant: the running thread hands
// the CPU to the next one by waking its goroutine and parking itself. This
// gives the synchronization layer the same execution model as a real
// single-CPU kernel, where "concurrency" is interleaving at well-defined
// points (block, yield, interrupt delivery) and masking interrupts is
// enough for mutual exclusion.
//
// Scheduling policy:
//   - The ready thread with the highest Priority runs; equal priorities are
//     served in FIFO order.
//   - Unblock does not preempt. Callers that wake a higher-priority thread
//     yield explicitly (see synch.Semaphore.Up).
//   - Spawn and SetPriority preempt the running thread when a ready thread
//     outranks it.
//
// Thread carries the priority-donation state (Priority, OriginalPriority,
// HeldLocks, AwaitedLock) that the synch package reads and writes. The
// scheduler only changes a thread's Priority in response to an explicit
// SetPriorityDonation message.
//
// Run returns when all threads have exited, when a thread fails, when the
// remaining threads are all blocked (ErrDeadlock), or when its context is
// cancelled.
package thread
