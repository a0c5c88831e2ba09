package thread

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/uniproc/internal/kernel/intr"
	"github.com/kolkov/uniproc/internal/kernel/stack"
	"github.com/kolkov/uniproc/internal/kernel/trace"
)

var (
	// ErrDeadlock is returned by Run when every remaining thread is
	// blocked and nothing can wake them.
	ErrDeadlock = errors.New("thread: all threads blocked")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("thread: scheduler already running")
)

// halted is the panic value used to unwind parked goroutines once the
// machine has stopped.
type halted struct{}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Threads             int
	ContextSwitches     uint64
	Yields              uint64
	Donations           uint64
	InterruptsRaised    uint64
	InterruptsDelivered uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(entry *log.Entry) Option {
	return func(s *Scheduler) {
		s.log = entry
	}
}

// WithSink sets the trace sink.
func WithSink(sink trace.Sink) Option {
	return func(s *Scheduler) {
		s.sink = sink
	}
}

// Scheduler is a simulated single-CPU priority scheduler.
//
// Except for Spawn before Run, Stats and Threads, all methods must be
// called from the running kernel thread. Once the machine has stopped,
// kernel calls made while a thread unwinds (deferred releases, for
// example) unwind it further instead of running.
type Scheduler struct {
	intr *intr.Controller
	log  *log.Entry
	sink trace.Sink
	seq  atomic.Uint64

	threadsMu sync.Mutex
	threads   []*Thread
	ready     []*Thread
	current   *Thread
	nextID    TID

	group   *errgroup.Group
	gctx    context.Context
	started atomic.Bool

	stopOnce sync.Once
	stopped  chan struct{}
	stopMu   sync.Mutex
	stopErr  error

	spawned   atomic.Uint32
	switches  atomic.Uint64
	yields    atomic.Uint64
	donations atomic.Uint64
}

// NewScheduler returns an idle scheduler with interrupts off.
func NewScheduler(opts ...Option) *Scheduler {
	group, gctx := errgroup.WithContext(context.Background())
	s := &Scheduler{
		intr:    intr.NewController(),
		log:     log.NewEntry(log.StandardLogger()),
		sink:    trace.Discard,
		group:   group,
		gctx:    gctx,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "scheduler")
	return s
}

// Spawn creates a thread that runs fn at the given priority.
//
// Before Run, threads are only queued. From a running thread, the caller
// is preempted if the new thread has a higher priority. If fn returns an
// error or panics, the machine halts and Run returns that error.
func (s *Scheduler) Spawn(name string, priority int, fn func() error) *Thread {
	if s.started.Load() {
		s.live()
	}
	if !validPriority(priority) {
		panic(fmt.Sprintf("thread: priority %d out of range [%d, %d]", priority, PriMin, PriMax))
	}
	old := s.intr.Disable()
	s.nextID++
	t := &Thread{
		ID:               s.nextID,
		Name:             name,
		Priority:         priority,
		OriginalPriority: priority,
		status:           StatusReady,
		fn:               fn,
		wake:             make(chan struct{}, 1),
	}
	s.threadsMu.Lock()
	s.threads = append(s.threads, t)
	s.threadsMu.Unlock()
	s.spawned.Inc()
	s.ready = append(s.ready, t)
	s.emit(trace.KindSpawn, t, "")
	s.group.Go(func() error {
		return s.start(t)
	})

	if cur := s.current; cur != nil && priority > cur.Priority {
		if s.intr.InContext() {
			s.intr.YieldOnReturn()
		} else {
			s.Yield()
		}
	}
	s.SetLevel(old)
	return t
}

// Run starts the highest-priority ready thread and waits for the machine
// to stop.
//
// The machine stops when every thread has exited, when a thread returns
// an error or fails an assertion, when no thread is ready while some are
// blocked, or when ctx is done. Threads still parked at that point are
// unwound.
//
// Parameters:
//   - ctx: cancelling it halts the machine
//
// Returns:
//   - nil if every thread exited normally
//   - an error wrapping ErrDeadlock that names the blocked threads
//   - the first thread failure, or the cancellation wrapping ctx.Err()
//   - ErrAlreadyRunning if Run was called before
//
// When several of these happen, the reason the machine halted wins over
// failures raised while threads unwind.
//
// Thread Safety: call once, from outside the machine. Threads may be
// spawned before Run and by running threads.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	first := s.popReady()
	if first == nil {
		return nil
	}
	s.log.WithField("threads", s.spawned.Load()).Debug("starting")
	s.switchTo(first)

	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			s.stop(fmt.Errorf("thread: run cancelled: %w", ctx.Err()))
		case <-s.gctx.Done():
			s.stop(nil)
		}
	}()

	err := s.group.Wait()
	<-watched

	// The halt reason comes first: errors raised while threads unwind
	// are consequences of it.
	s.stopMu.Lock()
	stopErr := s.stopErr
	s.stopMu.Unlock()
	if stopErr != nil {
		return stopErr
	}
	return err
}

// start is the body of a thread's goroutine.
func (s *Scheduler) start(t *Thread) (err error) {
	select {
	case <-t.wake:
	case <-s.stopped:
		return nil
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(halted); ok {
			err = nil
			return
		}
		err = panicError(t, r)
		s.stop(err)
	}()

	// Threads start with interrupts enabled.
	s.SetLevel(intr.On)
	if ferr := t.fn(); ferr != nil {
		err = fmt.Errorf("thread %s: %w", t.Name, ferr)
		s.stop(err)
		return err
	}
	s.exit(t)
	return nil
}

func panicError(t *Thread, r any) error {
	if e, ok := r.(error); ok {
		return fmt.Errorf("thread %s: %w", t.Name, e)
	}
	return fmt.Errorf("thread %s: panic: %v", t.Name, r)
}

// stop halts the machine. The first non-nil err is kept for Run.
func (s *Scheduler) stop(err error) {
	if err != nil {
		s.stopMu.Lock()
		if s.stopErr == nil {
			s.stopErr = err
			s.log.WithError(err).Warn("machine halted")
		}
		s.stopMu.Unlock()
	}
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}

// live unwinds the calling thread once the machine has stopped. Kernel
// entry points call it first, so deferred kernel calls in a thread body
// that run during the unwind do not fail on a machine with no current
// thread.
func (s *Scheduler) live() {
	if s.isStopped() {
		panic(halted{})
	}
}

func (s *Scheduler) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

// exit retires the running thread and hands the CPU on.
func (s *Scheduler) exit(t *Thread) {
	s.intr.Disable()
	if len(t.HeldLocks) > 0 {
		s.log.WithFields(log.Fields{
			"thread": t.Name,
			"locks":  len(t.HeldLocks),
		}).Warn("thread exited holding locks")
	}
	t.status = StatusDying
	s.emit(trace.KindExit, t, "")
	s.schedule()
}

// Current returns the running thread.
func (s *Scheduler) Current() *Thread {
	s.live()
	if s.current == nil {
		panic("thread: Current called outside a kernel thread")
	}
	return s.current
}

// Block puts the running thread to sleep until Unblock. Interrupts must be
// off and the caller must not be an interrupt handler.
func (s *Scheduler) Block() {
	s.live()
	if s.intr.InContext() {
		panic("thread: Block in interrupt context")
	}
	if s.intr.Level() != intr.Off {
		panic("thread: Block with interrupts on")
	}
	cur := s.current
	cur.status = StatusBlocked
	cur.blockedAt = stack.Capture(1)
	s.emit(trace.KindBlock, cur, "")
	s.schedule()
}

// Unblock makes a blocked thread ready. It does not preempt the caller.
func (s *Scheduler) Unblock(t *Thread) {
	s.live()
	old := s.intr.Disable()
	if t.status != StatusBlocked {
		panic(fmt.Sprintf("thread: Unblock %s in state %s", t, t.status))
	}
	t.status = StatusReady
	s.ready = append(s.ready, t)
	s.emit(trace.KindUnblock, t, "")
	s.SetLevel(old)
}

// Yield moves the running thread to the back of its priority class in the
// ready queue and runs the best ready thread, which may be the caller.
func (s *Scheduler) Yield() {
	s.live()
	if s.intr.InContext() {
		panic("thread: Yield in interrupt context")
	}
	old := s.intr.Disable()
	cur := s.current
	cur.status = StatusReady
	s.ready = append(s.ready, cur)
	s.yields.Inc()
	s.emit(trace.KindYield, cur, "")
	s.schedule()
	s.SetLevel(old)
}

// YieldOnReturn asks the interrupted thread to yield once the running
// interrupt handler returns.
func (s *Scheduler) YieldOnReturn() {
	s.live()
	s.intr.YieldOnReturn()
}

// SetPriorityDonation changes t's priority.
//
// A donation sets Priority and leaves OriginalPriority alone. A regular
// change sets OriginalPriority and recomputes Priority from the threads
// waiting on the locks t holds:
//
//	Priority = max(priority, highest waiter priority over t.HeldLocks)
//
// The effective priority of every held lock is reset the same way.
//
// If t is the running thread and no longer has the highest priority, it
// yields.
func (s *Scheduler) SetPriorityDonation(t *Thread, priority int, donation bool) {
	s.live()
	if !validPriority(priority) {
		panic(fmt.Sprintf("thread: priority %d out of range [%d, %d]", priority, PriMin, PriMax))
	}
	old := s.intr.Disable()
	prev := t.Priority
	detail := "set"
	if donation {
		t.Priority = priority
		detail = "donation"
	} else {
		t.OriginalPriority = priority
		next := priority
		for _, l := range t.HeldLocks {
			next = max(next, l.Recompute(priority))
		}
		t.Priority = next
	}
	if t.Priority != prev {
		if donation && t.Priority > prev {
			s.donations.Inc()
		}
		s.emit(trace.KindPriority, t, fmt.Sprintf("%s %d->%d", detail, prev, t.Priority))
	}

	if t == s.current && !s.intr.InContext() && s.outranked(t) {
		s.Yield()
	}
	s.SetLevel(old)
}

// SetPriority changes the running thread's own priority.
func (s *Scheduler) SetPriority(priority int) {
	s.SetPriorityDonation(s.Current(), priority, false)
}

// Disable masks interrupts and returns the previous level.
func (s *Scheduler) Disable() intr.Level {
	s.live()
	return s.intr.Disable()
}

// SetLevel sets the interrupt level and returns the previous one. When
// interrupts come back on outside interrupt context, pending handlers are
// delivered.
func (s *Scheduler) SetLevel(level intr.Level) intr.Level {
	s.live()
	old := s.intr.SetLevel(level)
	if level == intr.On && s.current != nil && !s.intr.InContext() && s.intr.Pending() > 0 {
		s.dispatch()
	}
	return old
}

// InContext reports whether an interrupt handler is running.
func (s *Scheduler) InContext() bool {
	return s.intr.InContext()
}

// Level returns the current interrupt level.
func (s *Scheduler) Level() intr.Level {
	return s.intr.Level()
}

// Interrupt raises an external interrupt from the running thread. The
// handler runs immediately if interrupts are on, otherwise as soon as they
// are turned back on.
func (s *Scheduler) Interrupt(name string, handler func()) {
	s.live()
	s.intr.Raise(intr.Handler{Name: name, Fn: func() {
		s.emit(trace.KindInterrupt, s.current, name)
		handler()
	}})
	if s.intr.Level() == intr.On && !s.intr.InContext() {
		s.dispatch()
	}
}

func (s *Scheduler) dispatch() {
	if s.intr.Dispatch() {
		s.Yield()
	}
}

// Note records a free-form trace annotation for the running thread.
func (s *Scheduler) Note(msg string) {
	s.emit(trace.KindNote, s.Current(), msg)
}

// Threads returns every thread created so far, in creation order.
//
// Thread Safety: the list itself may be taken from any goroutine. The
// fields of the returned threads change while the machine runs and are
// only stable after Run returns.
func (s *Scheduler) Threads() []*Thread {
	s.threadsMu.Lock()
	defer s.threadsMu.Unlock()
	out := make([]*Thread, len(s.threads))
	copy(out, s.threads)
	return out
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	raised, delivered := s.intr.Stats()
	return Stats{
		Threads:             int(s.spawned.Load()),
		ContextSwitches:     s.switches.Load(),
		Yields:              s.yields.Load(),
		Donations:           s.donations.Load(),
		InterruptsRaised:    raised,
		InterruptsDelivered: delivered,
	}
}

// schedule picks the next thread after the running one changed state.
// Interrupts must be off.
func (s *Scheduler) schedule() {
	if s.isStopped() {
		panic(halted{})
	}
	cur := s.current
	dying := cur.status == StatusDying

	next := s.popReady()
	if next == nil {
		s.current = nil
		if blocked := s.blocked(); len(blocked) > 0 {
			names := make([]string, len(blocked))
			for i, t := range blocked {
				names[i] = t.String()
				s.log.WithFields(log.Fields{
					"thread":  t.Name,
					"waiting": t.BlockedAt(),
				}).Warn("thread blocked forever")
			}
			s.stop(fmt.Errorf("%w: %s", ErrDeadlock, strings.Join(names, ", ")))
			if dying {
				return
			}
			panic(halted{})
		}
		s.log.Debug("all threads finished")
		return
	}
	if next == cur {
		cur.status = StatusRunning
		return
	}

	s.switchTo(next)
	if dying {
		return
	}
	select {
	case <-cur.wake:
	case <-s.stopped:
		panic(halted{})
	}
}

func (s *Scheduler) switchTo(next *Thread) {
	next.status = StatusRunning
	s.current = next
	s.switches.Inc()
	s.emit(trace.KindRun, next, "")
	next.wake <- struct{}{}
}

// popReady removes the first thread of the highest priority class.
func (s *Scheduler) popReady() *Thread {
	if len(s.ready) == 0 {
		return nil
	}
	best := 0
	for i, t := range s.ready {
		if t.Priority > s.ready[best].Priority {
			best = i
		}
	}
	t := s.ready[best]
	s.ready = append(s.ready[:best], s.ready[best+1:]...)
	return t
}

// outranked reports whether a ready thread has a higher priority than t.
func (s *Scheduler) outranked(t *Thread) bool {
	for _, r := range s.ready {
		if r.Priority > t.Priority {
			return true
		}
	}
	return false
}

func (s *Scheduler) blocked() []*Thread {
	var out []*Thread
	for _, t := range s.threads {
		if t.status == StatusBlocked {
			out = append(out, t)
		}
	}
	return out
}

func (s *Scheduler) emit(kind trace.Kind, t *Thread, detail string) {
	e := trace.Event{
		Seq:    s.seq.Inc(),
		Kind:   kind,
		Detail: detail,
	}
	if t != nil {
		e.TID = uint32(t.ID)
		e.Thread = t.Name
		e.Priority = t.Priority
	}
	s.sink.Emit(e)
}
