package synch

import (
	"cmp"
	"slices"

	"github.com/kolkov/uniproc/internal/kernel/thread"
)

// insertOrdered inserts v after every element whose priority is at least
// priority(v), keeping q highest first and FIFO among equals.
func insertOrdered[T any](q []T, v T, priority func(T) int) []T {
	p := priority(v)
	i := len(q)
	for j, e := range q {
		if priority(e) < p {
			i = j
			break
		}
	}
	return slices.Insert(q, i, v)
}

// sortByPriority stable-sorts q highest priority first.
func sortByPriority[T any](q []T, priority func(T) int) {
	slices.SortStableFunc(q, func(a, b T) int {
		return cmp.Compare(priority(b), priority(a))
	})
}

// popFront removes and returns the first element of q.
func popFront[T any](q []T) (T, []T) {
	var zero T
	v := q[0]
	q[0] = zero
	return v, q[1:]
}

// waiter is a thread queued on a semaphore. seq is its arrival number,
// used to break priority ties after priorities have drifted.
type waiter struct {
	t   *thread.Thread
	seq uint64
}

func waiterPriority(w waiter) int {
	return w.t.Priority
}

// sortWaiters orders q by current priority, highest first, then arrival.
func sortWaiters(q []waiter) {
	slices.SortFunc(q, func(a, b waiter) int {
		if c := cmp.Compare(b.t.Priority, a.t.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

func lockPriority(l thread.LockRef) int {
	return l.EffectivePriority()
}

func condPriority(w *condWaiter) int {
	return w.priority
}
