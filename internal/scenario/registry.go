package scenario

import (
	"sort"
	"sync"

	"github.com/kolkov/uniproc/internal/kernel/synch"
)

// Registry maps scenario names to synchronization primitives.
//
// Primitives are created lazily on first lookup and bound to the kernel
// the registry was built with. Lookups from thread bodies and from the
// goroutine that prepares the run may interleave, so the tables use
// sync.Map.
type Registry struct {
	k synch.Kernel

	// Key: primitive name. Value: *synch.Semaphore, *synch.Lock or
	// *synch.Condition.
	sems  sync.Map
	locks sync.Map
	conds sync.Map
}

// NewRegistry returns an empty registry bound to k.
func NewRegistry(k synch.Kernel) *Registry {
	return &Registry{k: k}
}

// Semaphore returns the semaphore with the given name, creating it with
// value initial if needed. initial is ignored for an existing semaphore.
func (r *Registry) Semaphore(name string, initial uint) *synch.Semaphore {
	if val, ok := r.sems.Load(name); ok {
		return val.(*synch.Semaphore)
	}
	val, _ := r.sems.LoadOrStore(name, synch.NewSemaphore(r.k, initial))
	return val.(*synch.Semaphore)
}

// Lock returns the lock with the given name, creating it if needed.
func (r *Registry) Lock(name string) *synch.Lock {
	if val, ok := r.locks.Load(name); ok {
		return val.(*synch.Lock)
	}
	val, _ := r.locks.LoadOrStore(name, synch.NewLock(r.k))
	return val.(*synch.Lock)
}

// Condition returns the condition variable with the given name, creating
// it if needed.
func (r *Registry) Condition(name string) *synch.Condition {
	if val, ok := r.conds.Load(name); ok {
		return val.(*synch.Condition)
	}
	val, _ := r.conds.LoadOrStore(name, synch.NewCondition(r.k))
	return val.(*synch.Condition)
}

// Values returns the current value of every semaphore, by name.
func (r *Registry) Values() map[string]uint {
	out := make(map[string]uint)
	r.sems.Range(func(key, val any) bool {
		out[key.(string)] = val.(*synch.Semaphore).Value()
		return true
	})
	return out
}

// Names returns the sorted names of every registered primitive.
func (r *Registry) Names() []string {
	var names []string
	collect := func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	}
	r.sems.Range(collect)
	r.locks.Range(collect)
	r.conds.Range(collect)
	sort.Strings(names)
	return names
}
