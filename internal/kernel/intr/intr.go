package intr

import (
	"fmt"

	"go.uber.org/atomic"
)

// Level is the interrupt level of the CPU.
type Level int32

const (
	// Off means interrupts are masked.
	Off Level = iota
	// On means interrupts are delivered.
	On
)

// String returns the string representation of a Level.
func (l Level) String() string {
	switch l {
	case Off:
		return "off"
	case On:
		return "on"
	default:
		return fmt.Sprintf("Level(%d)", int32(l))
	}
}

// Handler is an external interrupt handler.
type Handler struct {
	// Name identifies the interrupt source in traces.
	Name string

	// Fn is the handler body. It runs in interrupt context with
	// interrupts off and must not block.
	Fn func()
}

// Controller is the interrupt controller of the simulated CPU.
//
// The level and context flag are atomics so that observers outside the
// machine (tests, the CLI after a halt) can read them without racing the
// running thread. Everything else is only touched by the thread that
// currently owns the CPU.
type Controller struct {
	level     atomic.Int32
	inContext atomic.Bool

	yieldOnReturn bool
	pending       []Handler

	raised    atomic.Uint64
	delivered atomic.Uint64
}

// NewController returns a controller with interrupts off, the state of a
// CPU right after boot.
func NewController() *Controller {
	c := &Controller{}
	c.level.Store(int32(Off))
	return c
}

// Level returns the current interrupt level.
func (c *Controller) Level() Level {
	return Level(c.level.Load())
}

// Disable masks interrupts and returns the previous level.
func (c *Controller) Disable() Level {
	return c.SetLevel(Off)
}

// Enable unmasks interrupts and returns the previous level. It does not
// deliver pending handlers; see Dispatch.
func (c *Controller) Enable() Level {
	return c.SetLevel(On)
}

// SetLevel sets the interrupt level and returns the previous one.
func (c *Controller) SetLevel(level Level) Level {
	return Level(c.level.Swap(int32(level)))
}

// InContext reports whether an interrupt handler is currently running.
func (c *Controller) InContext() bool {
	return c.inContext.Load()
}

// Raise queues h for delivery. The caller decides when to Dispatch.
func (c *Controller) Raise(h Handler) {
	c.raised.Inc()
	c.pending = append(c.pending, h)
}

// Pending returns the number of raised but undelivered handlers.
func (c *Controller) Pending() int {
	return len(c.pending)
}

// YieldOnReturn asks for the interrupted thread to yield once the current
// handler returns. It may only be called from interrupt context.
func (c *Controller) YieldOnReturn() {
	if !c.InContext() {
		panic("intr: YieldOnReturn outside interrupt context")
	}
	c.yieldOnReturn = true
}

// Dispatch runs every pending handler in FIFO order, including handlers
// raised by the handlers themselves.
//
// Each handler runs with interrupts off and the context flag set; the
// previous level is restored afterwards. Dispatch returns true if any
// handler called YieldOnReturn, and clears that request.
//
// Dispatch must be called with interrupts on and outside interrupt
// context.
func (c *Controller) Dispatch() (yield bool) {
	if c.InContext() {
		panic("intr: nested Dispatch")
	}
	for len(c.pending) > 0 {
		h := c.pending[0]
		c.pending[0] = Handler{}
		c.pending = c.pending[1:]

		old := c.Disable()
		c.inContext.Store(true)
		h.Fn()
		c.inContext.Store(false)
		c.SetLevel(old)
		c.delivered.Inc()
	}
	yield = c.yieldOnReturn
	c.yieldOnReturn = false
	return yield
}

// Stats returns the number of raised and delivered interrupts.
func (c *Controller) Stats() (raised, delivered uint64) {
	return c.raised.Load(), c.delivered.Load()
}
