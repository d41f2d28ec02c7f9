package courier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// SubscribeStrategy controls how repeated invocations of one async handler
// relate to each other.
type SubscribeStrategy int

const (
	// SubscribeSequential runs invocations one at a time in publish order.
	SubscribeSequential SubscribeStrategy = iota
	// SubscribeParallel runs every invocation immediately, possibly overlapping.
	SubscribeParallel
	// SubscribeSwitch cancels the in-flight invocation when a new one starts.
	SubscribeSwitch
	// SubscribeDrop skips invocations while a previous one is still running.
	SubscribeDrop
)

func (s SubscribeStrategy) String() string {
	switch s {
	case SubscribeSequential:
		return "sequential"
	case SubscribeParallel:
		return "parallel"
	case SubscribeSwitch:
		return "switch"
	case SubscribeDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// PublishStrategy controls how PublishAsync waits for the async handlers of a
// single message.
type PublishStrategy int

const (
	// PublishParallel starts every async handler and waits for all of them.
	PublishParallel PublishStrategy = iota
	// PublishSequential awaits each async handler in registration order and
	// stops at the first failure.
	PublishSequential
)

func (s PublishStrategy) String() string {
	switch s {
	case PublishParallel:
		return "parallel"
	case PublishSequential:
		return "sequential"
	default:
		return "unknown"
	}
}

// dispatcher applies a SubscribeStrategy to an async handler. Only the fields
// of its own strategy are used.
type dispatcher[T any] struct {
	strategy SubscribeStrategy
	handle   Next[T]
	id       string

	mu sync.Mutex
	// sequential: closed when the most recently queued invocation finishes
	tail chan struct{}
	// switch: cancels the in-flight invocation
	cancel context.CancelFunc
	// drop
	busy atomic.Bool

	closed atomic.Bool
}

func newDispatcher[T any](strategy SubscribeStrategy, handle Next[T]) *dispatcher[T] {
	return &dispatcher[T]{strategy: strategy, handle: handle}
}

// dispatch starts one invocation and calls done exactly once with its result.
// Queueing, cancellation and the busy flag are settled on the caller's
// goroutine, so the order of dispatch calls is the order the strategy sees.
// Once the dispatcher is closed, invocations that have not started are skipped.
func (d *dispatcher[T]) dispatch(ctx context.Context, msg T, done func(error)) {
	if d.closed.Load() {
		done(nil)
		return
	}

	switch d.strategy {
	case SubscribeSequential:
		d.mu.Lock()
		prev := d.tail
		ticket := make(chan struct{})
		d.tail = ticket
		d.mu.Unlock()

		go func() {
			if prev != nil {
				<-prev
			}
			if d.closed.Load() {
				close(ticket)
				done(nil)
				return
			}
			err := d.run(ctx, msg)
			close(ticket)
			done(err)
		}()

	case SubscribeSwitch:
		d.mu.Lock()
		if d.cancel != nil {
			d.cancel()
		}
		ictx, cancel := context.WithCancel(ctx)
		d.cancel = cancel
		d.mu.Unlock()

		go func() {
			defer cancel()
			err := d.run(ictx, msg)
			if errors.Is(err, context.Canceled) && ictx.Err() != nil && ctx.Err() == nil {
				// superseded by a newer invocation or closed
				err = nil
			}
			done(err)
		}()

	case SubscribeDrop:
		if !d.busy.CompareAndSwap(false, true) {
			done(nil)
			return
		}
		go func() {
			err := func() error {
				defer d.busy.Store(false)
				return d.run(ctx, msg)
			}()
			done(err)
		}()

	default:
		go func() {
			done(d.run(ctx, msg))
		}()
	}
}

// await dispatches and blocks until the invocation finishes.
func (d *dispatcher[T]) await(ctx context.Context, msg T) error {
	result := make(chan error, 1)
	d.dispatch(ctx, msg, func(err error) { result <- err })
	return <-result
}

func (d *dispatcher[T]) run(ctx context.Context, msg T) (err error) {
	defer recoverAsError(&err)
	return d.handle(ctx, msg)
}

// close skips every invocation that has not started yet, including sequential
// ones queued behind a running invocation, and cancels the in-flight switch
// invocation. Running invocations are left to finish.
func (d *dispatcher[T]) close() {
	d.closed.Store(true)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
