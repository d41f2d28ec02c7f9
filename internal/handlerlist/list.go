// Package handlerlist holds the per message type collection of subscribed handlers.
//
// Mutations are serialized by a mutex and publish a fresh immutable snapshot
// through an atomic pointer, so traversal never takes a lock and never observes
// a half-applied mutation. Every node is stamped with the list version current
// at the time it was added; a traversal is bounded by a cutoff taken from
// NextVersion and stops at the first node stamped after it. Nodes are appended
// in registration order, so stamps never decrease along a snapshot.
package handlerlist

import (
	"iter"
	"math"
	"sync"
	"sync/atomic"
)

type entry[E any] struct {
	node  *Node
	value E
}

// List is a copy-on-write registry of nodes carrying values of type E.
type List[E any] struct {
	mu       sync.Mutex
	entries  atomic.Pointer[[]entry[E]]
	version  atomic.Uint64
	disposed bool
}

// New creates an empty list.
func New[E any]() *List[E] {
	return &List[E]{}
}

func (l *List[E]) load() []entry[E] {
	if p := l.entries.Load(); p != nil {
		return *p
	}
	return nil
}

// Add appends the node with its value at the tail. It is a no-op returning
// false once the list is disposed.
func (l *List[E]) Add(n *Node, value E) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed {
		return false
	}

	n.version.Store(l.version.Load())

	cur := l.load()
	next := make([]entry[E], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry[E]{node: n, value: value})
	l.entries.Store(&next)
	return true
}

// Remove unlinks the node. It returns false when the list is disposed or the
// node is not in the list.
func (l *List[E]) Remove(n *Node) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed {
		return false
	}

	cur := l.load()
	idx := -1
	for i, e := range cur {
		if e.node == n {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	next := make([]entry[E], 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	l.entries.Store(&next)
	return true
}

// Detach implements Owner.
func (l *List[E]) Detach(n *Node) {
	l.Remove(n)
}

// NextVersion returns the cutoff for one traversal and advances the counter.
// When the counter is exhausted every linked node is restamped to 0 and the
// counter restarts at 1, so live stamps never collide across the wrap.
func (l *List[E]) NextVersion() uint64 {
	for {
		v := l.version.Load()
		if v == math.MaxUint64 {
			if cutoff, ok := l.resetVersions(); ok {
				return cutoff
			}
			continue
		}
		if l.version.CompareAndSwap(v, v+1) {
			return v
		}
	}
}

func (l *List[E]) resetVersions() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.version.Load() != math.MaxUint64 {
		// another caller already wrapped the counter
		return 0, false
	}
	for _, e := range l.load() {
		e.node.version.Store(0)
	}
	l.version.Store(1)
	return 0, true
}

// All yields the values registered at or before cutoff, in registration order.
// The snapshot is taken when All is called.
func (l *List[E]) All(cutoff uint64) iter.Seq[E] {
	snapshot := l.load()
	return func(yield func(E) bool) {
		for _, e := range snapshot {
			if e.node.Version() > cutoff {
				return
			}
			if !yield(e.value) {
				return
			}
		}
	}
}

// Len returns the number of nodes in the current snapshot.
func (l *List[E]) Len() int {
	return len(l.load())
}

// IsDisposed reports whether Dispose has been called.
func (l *List[E]) IsDisposed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disposed
}

// Dispose drops every node; later Add and Remove calls are no-ops.
// A second Dispose returns ErrDisposed.
func (l *List[E]) Dispose() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed {
		return ErrDisposed
	}
	l.disposed = true
	l.entries.Store(nil)
	return nil
}
