// Package intr models the interrupt controller of a single simulated CPU.
//
// On a uniprocessor the only way to make a sequence of kernel operations
// appear atomic is to mask interrupts around it. The Controller keeps the
// current interrupt Level, the interrupt-context flag that is set while a
// handler runs, and a FIFO of handlers that were raised while interrupts
// were masked.
//
// The discipline used by every caller is:
//
//	old := c.Disable()
//	// ... mutate shared kernel state ...
//	c.SetLevel(old)
//
// Restoring the saved level (instead of unconditionally enabling) makes
// critical sections nest correctly.
//
// Delivery of pending handlers is driven by the scheduler: it calls
// Dispatch whenever the level returns to On outside interrupt context.
// Handlers run with interrupts off and may request a yield on return,
// which Dispatch reports back so the scheduler can switch threads once
// the handler has finished.
package intr
