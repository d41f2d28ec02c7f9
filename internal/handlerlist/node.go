package handlerlist

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrDisposed is returned when a node or list is used after disposal, including a second Dispose.
	ErrDisposed = errors.New("handler already disposed")

	// ErrAttached is returned when a node that already has an owner is attached again.
	ErrAttached = errors.New("handler already subscribed")
)

// Owner is notified when an attached node is disposed.
type Owner interface {
	Detach(*Node)
}

// Node is the bookkeeping shared by every subscribed handler: who owns it,
// the version stamp it was registered under and whether it was disposed.
//
// A node is attached to at most one owner and can only be disposed once.
// The zero value is ready to use.
type Node struct {
	version atomic.Uint64

	mu       sync.Mutex
	owner    Owner
	cleanup  func()
	id       string
	disposed bool
}

// Version returns the stamp assigned when the node was added to a list.
func (n *Node) Version() uint64 {
	return n.version.Load()
}

// ID returns the subscription id, assigned the first time the node is attached.
func (n *Node) ID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

// Attached reports whether the node currently has an owner.
func (n *Node) Attached() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.owner != nil
}

// IsDisposed reports whether Dispose has been called.
func (n *Node) IsDisposed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disposed
}

// Attach binds the node to owner. The cleanup func, when not nil, runs once
// after the owner has detached the node during Dispose.
func (n *Node) Attach(owner Owner, cleanup func()) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.disposed {
		return ErrDisposed
	}
	if n.owner != nil {
		return ErrAttached
	}

	n.owner = owner
	n.cleanup = cleanup
	if n.id == "" {
		n.id = uuid.Must(uuid.NewV7()).String()
	}
	return nil
}

// Release clears the owner without disposing the node, so a failed
// registration can leave the node reusable.
func (n *Node) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.owner = nil
	n.cleanup = nil
}

// Dispose detaches the node from its owner and marks it disposed.
// Calling Dispose a second time returns ErrDisposed.
func (n *Node) Dispose() error {
	n.mu.Lock()
	if n.disposed {
		n.mu.Unlock()
		return ErrDisposed
	}
	n.disposed = true
	owner, cleanup := n.owner, n.cleanup
	n.owner, n.cleanup = nil, nil
	n.mu.Unlock()

	if owner != nil {
		owner.Detach(n)
	}
	if cleanup != nil {
		cleanup()
	}
	return nil
}
