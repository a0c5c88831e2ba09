package scenario

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/kolkov/uniproc/internal/kernel/thread"
	"github.com/kolkov/uniproc/internal/kernel/trace"
)

// Result is the outcome of a scenario run.
type Result struct {
	Events []trace.Event
	Stats  thread.Stats

	// Priorities holds each created thread's priority when the run ended.
	Priorities map[string]int

	// Values holds each semaphore's value when the run ended.
	Values map[string]uint
}

// Runner runs scenarios on a fresh simulated machine.
type Runner struct {
	// Log is passed to the scheduler. Nil means the standard logger.
	Log *log.Entry

	// Sinks receive every trace event in addition to the result.
	Sinks []trace.Sink
}

// Run runs sc with the default runner.
func Run(ctx context.Context, sc *Scenario, sinks ...trace.Sink) (*Result, error) {
	r := &Runner{Sinks: sinks}
	return r.Run(ctx, sc)
}

// Run executes sc until every thread exits, a thread fails, the machine
// deadlocks or ctx is done. The result is returned even when err is
// non-nil.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	rec := trace.NewRecorder()
	sink := append(trace.Multi{rec}, r.Sinks...)
	entry := r.Log
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	if sc.Name != "" {
		entry = entry.WithField("scenario", sc.Name)
	}

	sched := thread.NewScheduler(thread.WithLogger(entry), thread.WithSink(sink))
	reg := NewRegistry(sched)
	for name, value := range sc.Semaphores {
		reg.Semaphore(name, value)
	}
	for _, name := range sc.Locks {
		reg.Lock(name)
	}
	for _, name := range sc.Conditions {
		reg.Condition(name)
	}

	for i := range sc.Threads {
		t := &sc.Threads[i]
		if t.Deferred {
			continue
		}
		sched.Spawn(t.Name, t.priority(), (&executor{sc: sc, sched: sched, reg: reg, spec: t}).run)
	}

	err := sched.Run(ctx)
	res := &Result{
		Events:     rec.Events(),
		Stats:      sched.Stats(),
		Priorities: make(map[string]int),
		Values:     reg.Values(),
	}
	for _, t := range sched.Threads() {
		res.Priorities[t.Name] = t.Priority
	}
	return res, err
}

// priority returns the thread's base priority, PriDefault when unset.
func (t *ThreadSpec) priority() int {
	if t.Priority == nil {
		return thread.PriDefault
	}
	return *t.Priority
}

// executor runs the ops of one thread.
type executor struct {
	sc    *Scenario
	sched *thread.Scheduler
	reg   *Registry
	spec  *ThreadSpec
}

func (x *executor) run() error {
	for i, op := range x.spec.Ops {
		if err := x.step(op); err != nil {
			return fmt.Errorf("op #%d %s: %w", i+1, op.Op, err)
		}
	}
	return nil
}

func (x *executor) step(op Op) error {
	switch op.Op {
	case OpDown:
		x.reg.Semaphore(op.Target, 0).Down()
	case OpTryDown:
		ok := x.reg.Semaphore(op.Target, 0).TryDown()
		return x.try(op, ok)
	case OpUp:
		x.reg.Semaphore(op.Target, 0).Up()
	case OpInterruptUp:
		sema := x.reg.Semaphore(op.Target, 0)
		x.sched.Interrupt("up "+op.Target, sema.Up)
	case OpExpectValue:
		if got := x.reg.Semaphore(op.Target, 0).Value(); got != uint(*op.Value) {
			return fmt.Errorf("%w: semaphore %s value %d, want %d", ErrExpectation, op.Target, got, *op.Value)
		}
	case OpAcquire:
		x.reg.Lock(op.Target).Acquire()
	case OpTryAcquire:
		ok := x.reg.Lock(op.Target).TryAcquire()
		return x.try(op, ok)
	case OpRelease:
		x.reg.Lock(op.Target).Release()
	case OpWait:
		x.reg.Condition(op.Target).Wait(x.reg.Lock(op.Lock))
	case OpSignal:
		x.reg.Condition(op.Target).Signal(x.reg.Lock(op.Lock))
	case OpBroadcast:
		x.reg.Condition(op.Target).Broadcast(x.reg.Lock(op.Lock))
	case OpSetPriority:
		x.sched.SetPriority(*op.Value)
	case OpExpectPriority:
		if got := x.sched.Current().Priority; got != *op.Value {
			return fmt.Errorf("%w: priority %d, want %d", ErrExpectation, got, *op.Value)
		}
	case OpYield:
		x.sched.Yield()
	case OpSpawn:
		spec, ok := x.sc.Thread(op.Target)
		if !ok {
			return fmt.Errorf("unknown thread %q", op.Target)
		}
		child := &executor{sc: x.sc, sched: x.sched, reg: x.reg, spec: spec}
		x.sched.Spawn(spec.Name, spec.priority(), child.run)
	case OpNote:
		x.sched.Note(op.Message)
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
	return nil
}

func (x *executor) try(op Op, ok bool) error {
	x.sched.Note(fmt.Sprintf("%s %s: %t", op.Op, op.Target, ok))
	if op.Expect != nil && *op.Expect != ok {
		return fmt.Errorf("%w: %s %s returned %t", ErrExpectation, op.Op, op.Target, ok)
	}
	return nil
}

