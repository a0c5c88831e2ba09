package synch

import (
	"context"
	"errors"
	"testing"

	"github.com/kolkov/uniproc/internal/kernel/thread"
	"github.com/kolkov/uniproc/internal/kernel/trace"
)

func newKernel(t *testing.T) (*thread.Scheduler, *trace.Recorder) {
	t.Helper()
	rec := trace.NewRecorder()
	return thread.NewScheduler(thread.WithSink(rec)), rec
}

func mustRun(t *testing.T, s *thread.Scheduler) {
	t.Helper()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

// runExpectAssertion runs s and checks that it halted on an AssertionError
// raised by op.
func runExpectAssertion(t *testing.T, s *thread.Scheduler, op string) *AssertionError {
	t.Helper()
	err := s.Run(context.Background())
	if !errors.Is(err, ErrAssertion) {
		t.Fatalf("Run() = %v, want an assertion failure", err)
	}
	var ae *AssertionError
	if !errors.As(err, &ae) {
		t.Fatalf("Run() = %v, not an *AssertionError", err)
	}
	if ae.Op != op {
		t.Errorf("assertion Op = %q, want %q", ae.Op, op)
	}
	return ae
}

func equalStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
