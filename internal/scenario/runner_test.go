package scenario

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kolkov/uniproc/internal/kernel/synch"
	"github.com/kolkov/uniproc/internal/kernel/thread"
	"github.com/kolkov/uniproc/internal/kernel/trace"
)

func mustLoad(t *testing.T, name string) *Scenario {
	t.Helper()
	sc, err := Load(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("Load(%s) error: %v", name, err)
	}
	return sc
}

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return sc
}

func notes(events []trace.Event) []string {
	var out []string
	for _, e := range events {
		if e.Kind == trace.KindNote {
			out = append(out, e.Detail)
		}
	}
	return out
}

func equal(got, want []string) bool {
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

// TestRun_Testdata runs the shipped scenarios and checks their notes.
func TestRun_Testdata(t *testing.T) {
	tests := []struct {
		file  string
		notes []string
	}{
		{"donation.json", []string{"low releasing", "high has lock", "low done"}},
		{"wake_order.json", []string{"w7a", "w7b", "w3", "w1"}},
		{"monitor.json", []string{"producing", "consumer woke", "producer done"}},
		{"interrupt.json", []string{"waiter", "main"}},
		{"chain.json", []string{"high", "mid", "low"}},
		{"two_locks.json", []string{"c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			res, err := Run(context.Background(), mustLoad(t, tt.file))
			if err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if got := notes(res.Events); !equal(got, tt.notes) {
				t.Errorf("notes = %v, want %v", got, tt.notes)
			}
		})
	}
}

// TestRun_DonationResult checks stats and final priorities.
func TestRun_DonationResult(t *testing.T) {
	res, err := Run(context.Background(), mustLoad(t, "donation.json"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Stats.Threads != 2 {
		t.Errorf("Stats.Threads = %d, want 2", res.Stats.Threads)
	}
	if res.Stats.Donations != 1 {
		t.Errorf("Stats.Donations = %d, want 1", res.Stats.Donations)
	}
	if res.Priorities["low"] != 10 || res.Priorities["high"] != 40 {
		t.Errorf("Priorities = %v, want low=10 high=40", res.Priorities)
	}
}

// TestRun_BuiltScenario verifies a scenario built in code, without Parse
// filling defaults, runs unset priorities at PriDefault.
func TestRun_BuiltScenario(t *testing.T) {
	high := 40
	sc := &Scenario{
		Version: SupportedVersion,
		Threads: []ThreadSpec{
			{Name: "plain", Ops: []Op{{Op: OpNote, Message: "plain"}}},
			{Name: "high", Priority: &high, Ops: []Op{{Op: OpNote, Message: "high"}}},
		},
	}
	res, err := Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := res.Priorities["plain"]; got != thread.PriDefault {
		t.Errorf("Priorities[plain] = %d, want %d", got, thread.PriDefault)
	}
	if got := res.Priorities["high"]; got != 40 {
		t.Errorf("Priorities[high] = %d, want 40", got)
	}
	if got := notes(res.Events); !equal(got, []string{"high", "plain"}) {
		t.Errorf("notes = %v, want [high plain]", got)
	}
}

// TestRun_ExtraSink verifies caller sinks see the same events as the result.
func TestRun_ExtraSink(t *testing.T) {
	rec := trace.NewRecorder()
	res, err := Run(context.Background(), mustLoad(t, "wake_order.json"), rec)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got, want := len(rec.Events()), len(res.Events); got != want {
		t.Errorf("sink saw %d events, result has %d", got, want)
	}
	if got := rec.Threads(trace.KindUnblock); !equal(got, []string{"w7a", "w7b", "w3", "w1"}) {
		t.Errorf("unblock order = %v", got)
	}
}

// TestRun_TryOps verifies try results are noted and checked.
func TestRun_TryOps(t *testing.T) {
	sc := mustParse(t, `{
		"version": "v1.1.0",
		"semaphores": {"s": 1},
		"locks": ["l"],
		"threads": [{"name": "a", "ops": [
			{"op": "try_down", "target": "s", "expect": true},
			{"op": "try_down", "target": "s", "expect": false},
			{"op": "expect_value", "target": "s", "value": 0},
			{"op": "try_acquire", "target": "l", "expect": true},
			{"op": "release", "target": "l"},
			{"op": "up", "target": "s"}
		]}]
	}`)
	res, err := Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := []string{"try_down s: true", "try_down s: false", "try_acquire l: true"}
	if got := notes(res.Events); !equal(got, want) {
		t.Errorf("notes = %v, want %v", got, want)
	}
	if res.Values["s"] != 1 {
		t.Errorf("Values[s] = %d, want 1", res.Values["s"])
	}
}

// TestRun_ExpectationFailure verifies a failed expectation halts the run.
func TestRun_ExpectationFailure(t *testing.T) {
	sc := mustParse(t, `{
		"version": "v1.0.0",
		"threads": [{"name": "a", "priority": 5, "ops": [
			{"op": "expect_priority", "value": 6},
			{"op": "note", "message": "unreachable"}
		]}]
	}`)
	res, err := Run(context.Background(), sc)
	if !errors.Is(err, ErrExpectation) {
		t.Fatalf("Run() error = %v, want ErrExpectation", err)
	}
	if len(notes(res.Events)) != 0 {
		t.Error("thread kept running after a failed expectation")
	}
}

// TestRun_Deadlock verifies a stuck scenario reports ErrDeadlock.
func TestRun_Deadlock(t *testing.T) {
	sc := mustParse(t, `{
		"version": "v1.0.0",
		"semaphores": {"s": 0},
		"threads": [{"name": "a", "ops": [{"op": "down", "target": "s"}]}]
	}`)
	_, err := Run(context.Background(), sc)
	if !errors.Is(err, thread.ErrDeadlock) {
		t.Fatalf("Run() error = %v, want ErrDeadlock", err)
	}
}

// TestRun_Assertion verifies contract violations surface as AssertionError.
func TestRun_Assertion(t *testing.T) {
	sc := mustParse(t, `{
		"version": "v1.0.0",
		"locks": ["l"],
		"threads": [{"name": "a", "ops": [{"op": "release", "target": "l"}]}]
	}`)
	_, err := Run(context.Background(), sc)
	var ae *synch.AssertionError
	if !errors.As(err, &ae) {
		t.Fatalf("Run() error = %v, want *synch.AssertionError", err)
	}
	if ae.Op != "Lock.Release" {
		t.Errorf("Op = %q, want Lock.Release", ae.Op)
	}
}

// TestRun_Cancelled verifies a context deadline stops a spinning scenario.
func TestRun_Cancelled(t *testing.T) {
	ops := `{"op": "yield"}`
	for range 200 {
		ops += `, {"op": "yield"}`
	}
	sc := mustParse(t, `{"version": "v1.0.0", "threads": [
		{"name": "a", "ops": [`+ops+`]},
		{"name": "b", "ops": [`+ops+`]}
	]}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, sc)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want nil or context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}
}

// TestRegistry_GetOrCreate verifies lookups return the same primitive.
func TestRegistry_GetOrCreate(t *testing.T) {
	sched := thread.NewScheduler()
	r := NewRegistry(sched)

	s1 := r.Semaphore("s", 3)
	s2 := r.Semaphore("s", 9)
	if s1 != s2 {
		t.Error("Semaphore() returned a different instance")
	}
	if s1.Value() != 3 {
		t.Errorf("Value() = %d, want 3 (initial ignored on lookup)", s1.Value())
	}
	if r.Lock("l") != r.Lock("l") {
		t.Error("Lock() returned a different instance")
	}
	if r.Condition("c") != r.Condition("c") {
		t.Error("Condition() returned a different instance")
	}
	if got := r.Names(); !equal(got, []string{"c", "l", "s"}) {
		t.Errorf("Names() = %v, want [c l s]", got)
	}
	if got := r.Values(); len(got) != 1 || got["s"] != 3 {
		t.Errorf("Values() = %v, want map[s:3]", got)
	}
}
