// Package synch implements the synchronization primitives of a
// uniprocessor kernel: counting semaphores, locks with priority donation,
// and Mesa-style condition variables.
//
// All three are built on one atomicity primitive, masking interrupts, and
// on four scheduler operations: block the running thread, unblock a
// thread, yield, and change a thread's priority. Both collaborators are
// reached through the Kernel interface; thread.Scheduler implements it.
//
// # Wake order
//
// Every wait queue is kept in priority order on insertion, but priorities
// can change while a thread is queued (donation raises them). Queues are
// therefore re-sorted at wake time, and the front entry is woken. Among
// equal priorities the earliest arrival wins.
//
// # Priority donation
//
// When a thread blocks on a held Lock, it donates its priority to the
// holder, and transitively to the holder of any lock the holder is itself
// waiting for. A Lock remembers the highest priority of its holder and
// waiters (its effective priority); on release, the releasing thread drops
// to the highest effective priority among the locks it still holds, or to
// its own priority.
//
// # Contract violations
//
// Misuse (blocking in interrupt context, recursive acquire, releasing a
// lock the caller does not hold, waiting on a condition without its lock)
// is a kernel bug. It panics with an *AssertionError; the simulated
// scheduler turns the panic into an error returned from Run.
package synch
