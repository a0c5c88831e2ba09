package synch

import (
	"testing"

	"github.com/kolkov/uniproc/internal/kernel/thread"
)

type item struct {
	name     string
	priority int
}

func itemPriority(i item) int { return i.priority }

func names(q []item) []string {
	out := make([]string, len(q))
	for i, it := range q {
		out[i] = it.name
	}
	return out
}

// TestInsertOrdered verifies insertion keeps highest first and FIFO among
// equals.
func TestInsertOrdered(t *testing.T) {
	var q []item
	for _, it := range []item{{"p3", 3}, {"p7a", 7}, {"p1", 1}, {"p7b", 7}} {
		q = insertOrdered(q, it, itemPriority)
	}
	want := []string{"p7a", "p7b", "p3", "p1"}
	if got := names(q); !equalStrings(got, want) {
		t.Errorf("queue = %v, want %v", got, want)
	}
}

// TestSortByPriority_Stable verifies equal priorities keep their order.
func TestSortByPriority_Stable(t *testing.T) {
	q := []item{{"a", 1}, {"b", 5}, {"c", 1}, {"d", 5}}
	sortByPriority(q, itemPriority)
	want := []string{"b", "d", "a", "c"}
	if got := names(q); !equalStrings(got, want) {
		t.Errorf("queue = %v, want %v", got, want)
	}
}

// TestSortWaiters_ArrivalBreaksTies verifies ties go to the earliest
// arrival even when the queue order has drifted.
func TestSortWaiters_ArrivalBreaksTies(t *testing.T) {
	late := &thread.Thread{Name: "late", Priority: 9}
	early := &thread.Thread{Name: "early", Priority: 9}
	low := &thread.Thread{Name: "low", Priority: 2}
	q := []waiter{{t: late, seq: 3}, {t: low, seq: 1}, {t: early, seq: 2}}

	sortWaiters(q)

	want := []string{"early", "late", "low"}
	for i, w := range q {
		if w.t.Name != want[i] {
			t.Fatalf("position %d = %s, want %s", i, w.t.Name, want[i])
		}
	}
}

// TestPopFront verifies the slot is cleared and the rest returned.
func TestPopFront(t *testing.T) {
	backing := []*condWaiter{{priority: 1}, {priority: 2}}
	first, rest := popFront(backing)
	if first.priority != 1 || len(rest) != 1 || rest[0].priority != 2 {
		t.Errorf("popFront = %v, %v", first, rest)
	}
	if backing[0] != nil {
		t.Error("popFront left a reference in the backing array")
	}
}
