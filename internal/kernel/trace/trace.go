// Package trace records what the simulated CPU does: thread creation,
// context switches, blocking, wakeups, priority changes and interrupts.
//
// The scheduler emits one Event per decision to a Sink. Tests and the
// scenario runner use a Recorder to assert on wake order and donation; the
// CLI uses a LogSink to print the stream through logrus.
package trace

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Kind identifies what happened.
type Kind int

const (
	// KindSpawn is emitted when a thread is created.
	KindSpawn Kind = iota
	// KindRun is emitted when a thread is switched onto the CPU.
	KindRun
	// KindBlock is emitted when a thread blocks.
	KindBlock
	// KindUnblock is emitted when a blocked thread becomes ready.
	KindUnblock
	// KindYield is emitted when a running thread gives up the CPU.
	KindYield
	// KindPriority is emitted when a thread's priority changes.
	KindPriority
	// KindExit is emitted when a thread finishes.
	KindExit
	// KindInterrupt is emitted when an interrupt handler is delivered.
	KindInterrupt
	// KindNote is a free-form annotation from thread code.
	KindNote
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindRun:
		return "run"
	case KindBlock:
		return "block"
	case KindUnblock:
		return "unblock"
	case KindYield:
		return "yield"
	case KindPriority:
		return "priority"
	case KindExit:
		return "exit"
	case KindInterrupt:
		return "interrupt"
	case KindNote:
		return "note"
	default:
		return "unknown"
	}
}

// Event is a single scheduling or synchronization event.
type Event struct {
	// Seq is the position of the event in the stream, starting at 1.
	Seq uint64

	// Kind is what happened.
	Kind Kind

	// TID and Thread identify the thread the event is about, which is not
	// necessarily the running thread (e.g. unblock, donation).
	TID    uint32
	Thread string

	// Priority is the thread's priority after the event.
	Priority int

	// Detail is kind-specific text: the donation source, an interrupt
	// name, a note.
	Detail string
}

// String formats the event as a single trace line.
func (e Event) String() string {
	s := fmt.Sprintf("#%d %-9s %s(%d) pri=%d", e.Seq, e.Kind, e.Thread, e.TID, e.Priority)
	if e.Detail != "" {
		s += " " + e.Detail
	}
	return s
}

// Sink receives events.
type Sink interface {
	Emit(e Event)
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Recorder is an in-memory Sink.
//
// Thread Safety: safe for concurrent use; events are appended under a mutex
// so the recorder can be read after Run returns or from a test goroutine.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded events of the given kind, in order.
func (r *Recorder) Filter(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Threads returns the thread names of the recorded events of the given
// kind, in order. Handy for asserting wake and run order.
func (r *Recorder) Threads(kind Kind) []string {
	events := r.Filter(kind)
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Thread
	}
	return names
}

// Reset clears all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// LogSink prints events through a logrus entry at debug level, except
// notes which are printed at info level.
type LogSink struct {
	Entry *log.Entry
}

// NewLogSink returns a LogSink writing to entry.
func NewLogSink(entry *log.Entry) *LogSink {
	return &LogSink{Entry: entry}
}

// Emit logs e with one field per event attribute.
func (s *LogSink) Emit(e Event) {
	entry := s.Entry.WithFields(log.Fields{
		"seq":      e.Seq,
		"tid":      e.TID,
		"thread":   e.Thread,
		"priority": e.Priority,
	})
	if e.Detail != "" {
		entry = entry.WithField("detail", e.Detail)
	}
	if e.Kind == KindNote {
		entry.Info(e.Kind.String())
		return
	}
	entry.Debug(e.Kind.String())
}

// Multi fans events out to several sinks.
type Multi []Sink

// Emit forwards e to every sink.
func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
