package kernel

import (
	log "github.com/sirupsen/logrus"

	"github.com/kolkov/uniproc/internal/kernel/synch"
	"github.com/kolkov/uniproc/internal/kernel/thread"
	"github.com/kolkov/uniproc/internal/kernel/trace"
)

// Thread priorities.
const (
	PriMin     = thread.PriMin
	PriDefault = thread.PriDefault
	PriMax     = thread.PriMax
)

type (
	// Machine is a simulated uniprocessor.
	Machine = thread.Scheduler

	// Thread is a kernel thread running on a Machine.
	Thread = thread.Thread

	// Option configures a Machine.
	Option = thread.Option

	// Stats is a snapshot of Machine counters.
	Stats = thread.Stats

	// Semaphore is a counting semaphore.
	Semaphore = synch.Semaphore

	// Lock is a non-recursive lock with priority donation.
	Lock = synch.Lock

	// Condition is a Mesa-style condition variable.
	Condition = synch.Condition

	// AssertionError reports misuse of a primitive.
	AssertionError = synch.AssertionError

	// Event is one trace record.
	Event = trace.Event

	// Sink receives trace events.
	Sink = trace.Sink

	// Recorder is a Sink that keeps events in memory.
	Recorder = trace.Recorder
)

var (
	// ErrAssertion matches every *AssertionError.
	ErrAssertion = synch.ErrAssertion

	// ErrDeadlock is returned by Run when all remaining threads are
	// blocked.
	ErrDeadlock = thread.ErrDeadlock
)

// NewMachine returns a machine with no threads.
func NewMachine(opts ...Option) *Machine {
	return thread.NewScheduler(opts...)
}

// WithLogger sets the logger used for machine lifecycle messages.
func WithLogger(entry *log.Entry) Option {
	return thread.WithLogger(entry)
}

// WithTrace sends every trace event to sink.
func WithTrace(sink Sink) Option {
	return thread.WithSink(sink)
}

// NewSemaphore returns a semaphore on m with the given initial value.
func NewSemaphore(m *Machine, value uint) *Semaphore {
	return synch.NewSemaphore(m, value)
}

// NewLock returns a free lock on m.
func NewLock(m *Machine) *Lock {
	return synch.NewLock(m)
}

// NewCondition returns a condition variable on m with no waiters.
func NewCondition(m *Machine) *Condition {
	return synch.NewCondition(m)
}

// NewRecorder returns an empty in-memory trace sink.
func NewRecorder() *Recorder {
	return trace.NewRecorder()
}

// NewLogSink returns a Sink that logs each event to entry.
func NewLogSink(entry *log.Entry) Sink {
	return trace.NewLogSink(entry)
}
