package courier

import (
	"context"
	"sync"

	"github.com/casualjim/courier/internal/handlerlist"
	"github.com/casualjim/courier/internal/pipeline"
)

// Publisher sends messages of type T.
type Publisher[T any] interface {
	Publish(ctx context.Context, msg T) error
	PublishAsync(ctx context.Context, msg T, strategy PublishStrategy) error
}

// Subscriber attaches handlers for messages of type T.
type Subscriber[T any] interface {
	Subscribe(h Handler[T]) (Subscription, error)
	SubscribeAwait(h AsyncHandler[T], strategy SubscribeStrategy) (Subscription, error)
}

type publisherView[T any] struct{ b *Broker[T] }

func (p publisherView[T]) Publish(ctx context.Context, msg T) error {
	return p.b.Publish(ctx, msg)
}

func (p publisherView[T]) PublishAsync(ctx context.Context, msg T, strategy PublishStrategy) error {
	return p.b.PublishAsync(ctx, msg, strategy)
}

type subscriberView[T any] struct{ b *Broker[T] }

func (s subscriberView[T]) Subscribe(h Handler[T]) (Subscription, error) {
	return s.b.Subscribe(h)
}

func (s subscriberView[T]) SubscribeAwait(h AsyncHandler[T], strategy SubscribeStrategy) (Subscription, error) {
	return s.b.SubscribeAwait(h, strategy)
}

// SubscribeFunc subscribes fn as a sync handler.
func SubscribeFunc[T any](s Subscriber[T], fn func(context.Context, T) error) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return s.Subscribe(NewHandler(fn))
}

// SubscribeAwaitFunc subscribes fn as an async handler under strategy.
func SubscribeAwaitFunc[T any](s Subscriber[T], fn func(context.Context, T) error, strategy SubscribeStrategy) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return s.SubscribeAwait(NewAsyncHandler(fn), strategy)
}

// WithFilters returns a Subscriber that wraps every handler it subscribes
// with filters, inside any global filters of the underlying broker.
func WithFilters[T any](s Subscriber[T], filters ...Filter[T]) Subscriber[T] {
	return &filteredSubscriber[T]{inner: s, chain: newChain(filters)}
}

type filteredSubscriber[T any] struct {
	inner Subscriber[T]
	chain *pipeline.Chain[T]
}

func (f *filteredSubscriber[T]) Subscribe(h Handler[T]) (Subscription, error) {
	if isNil(h) {
		return nil, ErrNilHandler
	}
	terminal := pipeline.Next[T](h.Handle)
	wrapper := NewHandler(func(ctx context.Context, msg T) error {
		return f.chain.Invoke(ctx, msg, terminal)
	})
	return bindForwarded(h.handlerNode(), func() (Subscription, error) {
		return f.inner.Subscribe(wrapper)
	})
}

func (f *filteredSubscriber[T]) SubscribeAwait(h AsyncHandler[T], strategy SubscribeStrategy) (Subscription, error) {
	if isNil(h) {
		return nil, ErrNilHandler
	}
	terminal := pipeline.Next[T](h.HandleAsync)
	wrapper := NewAsyncHandler(func(ctx context.Context, msg T) error {
		return f.chain.Invoke(ctx, msg, terminal)
	})
	return bindForwarded(h.handlerNode(), func() (Subscription, error) {
		return f.inner.SubscribeAwait(wrapper, strategy)
	})
}

// bindForwarded subscribes through subscribe and makes hn the owner of the
// resulting subscription: unsubscribing hn unsubscribes the inner one.
func bindForwarded(hn *HandlerNode, subscribe func() (Subscription, error)) (Subscription, error) {
	if hn.node.IsDisposed() {
		return nil, ErrDisposed
	}
	if hn.node.Attached() {
		return nil, ErrAlreadySubscribed
	}

	inner, err := subscribe()
	if err != nil {
		return nil, err
	}
	if err := hn.node.Attach(&forwardOwner{inner: inner}, nil); err != nil {
		_ = inner.Unsubscribe()
		return nil, err
	}
	return hn, nil
}

type forwardOwner struct {
	once  sync.Once
	inner Subscription
}

func (f *forwardOwner) Detach(_ *handlerlist.Node) {
	f.once.Do(func() { _ = f.inner.Unsubscribe() })
}
