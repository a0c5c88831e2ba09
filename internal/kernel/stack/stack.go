// Package stack records where kernel threads block.
//
// Call stacks are captured as program counters, deduplicated by hash and
// kept in a process-wide depot, so a thread only carries a 64-bit ID. The
// scheduler captures one on every Block and resolves it when it reports a
// deadlock.
package stack

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"
	"sync"
)

// MaxFrames is the maximum number of frames kept per stack.
const MaxFrames = 8

// ID identifies a captured stack. The zero ID means no stack.
type ID uint64

// Trace is a captured call stack.
type Trace struct {
	PC [MaxFrames]uintptr
	n  int
}

var depot sync.Map // ID -> *Trace

// Capture records the caller's stack, skipping skip extra frames above
// the caller, and returns its ID.
func Capture(skip int) ID {
	var pcs [MaxFrames]uintptr
	// Skip runtime.Callers and Capture.
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return 0
	}

	id := hashPCs(pcs[:n])
	if _, ok := depot.Load(id); ok {
		return id
	}
	depot.LoadOrStore(id, &Trace{PC: pcs, n: n})
	return id
}

// Lookup returns the stack for id, or nil.
func Lookup(id ID) *Trace {
	if id == 0 {
		return nil
	}
	val, ok := depot.Load(id)
	if !ok {
		return nil
	}
	return val.(*Trace)
}

func hashPCs(pcs []uintptr) ID {
	h := fnv.New64a()
	var buf [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(buf[:], uint64(pc))
		_, _ = h.Write(buf[:])
	}
	sum := h.Sum64()
	if sum == 0 {
		sum = 1
	}
	return ID(sum)
}

// Frames returns the non-runtime frames of the stack, innermost first.
func (t *Trace) Frames() []runtime.Frame {
	if t == nil || t.n == 0 {
		return nil
	}
	var out []runtime.Frame
	frames := runtime.CallersFrames(t.PC[:t.n])
	for {
		frame, more := frames.Next()
		if frame.PC != 0 && !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, frame)
		}
		if !more {
			break
		}
	}
	return out
}

// Site returns "function (file:line)" for the first frame whose function
// does not start with one of skip.
func (t *Trace) Site(skip ...string) string {
outer:
	for _, frame := range t.Frames() {
		for _, prefix := range skip {
			if strings.HasPrefix(frame.Function, prefix) {
				continue outer
			}
		}
		return fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line)
	}
	return "<unknown>"
}

// Format renders the stack one frame per two lines, like a goroutine dump.
func (t *Trace) Format() string {
	frames := t.Frames()
	if len(frames) == 0 {
		return "  <unknown>\n"
	}
	var buf strings.Builder
	for _, frame := range frames {
		fmt.Fprintf(&buf, "  %s()\n", frame.Function)
		fmt.Fprintf(&buf, "      %s:%d\n", frame.File, frame.Line)
	}
	return buf.String()
}

// Reset empties the depot. Not safe while other goroutines capture.
func Reset() {
	depot = sync.Map{}
}

// Count returns the number of distinct stacks in the depot.
func Count() int {
	n := 0
	depot.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
