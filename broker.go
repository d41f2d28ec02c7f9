package courier

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/casualjim/courier/internal/handlerlist"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fogfish/opts"
)

// Broker delivers messages of type T to the handlers subscribed to it.
//
// Sync handlers run on the publisher's goroutine in registration order. Async
// handlers run on their own goroutines under their SubscribeStrategy. A publish
// reaches exactly the handlers registered before it started; handlers that
// subscribe while it is in progress, including from inside a handler, only see
// later messages.
//
// All methods are safe for concurrent use.
type Broker[T any] struct {
	syncHandlers  *handlerlist.List[Next[T]]
	asyncHandlers *handlerlist.List[*dispatcher[T]]

	mu      sync.Mutex
	filters []Filter[T]
	closed  bool

	logger      *slog.Logger
	failureSink FailureSink
}

// New creates a broker for messages of type T.
func New[T any](options ...opts.Option[brokerConfig]) *Broker[T] {
	cfg := newBrokerConfig(options)
	return &Broker[T]{
		syncHandlers:  handlerlist.New[Next[T]](),
		asyncHandlers: handlerlist.New[*dispatcher[T]](),
		filters:       NewFilterSet[T](cfg.filters).GlobalFilters(),
		logger:        cfg.logger.With(slogx.MessageType[T]()),
		failureSink:   cfg.failureSink,
	}
}

// Publish invokes every sync handler and then starts every async handler
// without waiting for it. The first sync handler error stops delivery and is
// returned. Async failures go to the FailureSink.
func (b *Broker[T]) Publish(ctx context.Context, msg T) error {
	if err := b.publishSync(ctx, msg); err != nil {
		return err
	}

	for d := range b.asyncHandlers.All(b.asyncHandlers.NextVersion()) {
		d.dispatch(ctx, msg, func(err error) {
			if err != nil {
				b.failureSink(ctx, d.id, err)
			}
		})
	}
	return nil
}

// PublishAsync invokes every sync handler and then the async handlers,
// waiting for them as strategy dictates. PublishSequential returns the first
// failure and skips the remaining handlers; PublishParallel returns all
// failures joined.
func (b *Broker[T]) PublishAsync(ctx context.Context, msg T, strategy PublishStrategy) error {
	if err := b.publishSync(ctx, msg); err != nil {
		return err
	}

	handlers := b.asyncHandlers.All(b.asyncHandlers.NextVersion())

	if strategy == PublishSequential {
		for d := range handlers {
			if err := d.await(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for d := range handlers {
		wg.Add(1)
		d.dispatch(ctx, msg, func(err error) {
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			wg.Done()
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (b *Broker[T]) publishSync(ctx context.Context, msg T) error {
	for handle := range b.syncHandlers.All(b.syncHandlers.NextVersion()) {
		if err := handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe attaches a sync handler. Global filters registered so far wrap the
// handler and run inline before it.
func (b *Broker[T]) Subscribe(h Handler[T]) (Subscription, error) {
	if isNil(h) {
		return nil, ErrNilHandler
	}
	filters, err := b.snapshotFilters()
	if err != nil {
		return nil, err
	}

	hn := h.handlerNode()
	if err := hn.node.Attach(b.syncHandlers, nil); err != nil {
		return nil, err
	}
	if !b.syncHandlers.Add(&hn.node, filtered(filters, h.Handle)) {
		hn.node.Release()
		return nil, ErrDisposed
	}

	b.logger.Debug("subscribed handler", slogx.SubscriptionID(hn.ID()), slog.Int("filters", len(filters)))
	return hn, nil
}

// SubscribeAwait attaches an async handler under strategy. When global filters
// are registered the handler is wrapped by them and always runs sequentially.
func (b *Broker[T]) SubscribeAwait(h AsyncHandler[T], strategy SubscribeStrategy) (Subscription, error) {
	if isNil(h) {
		return nil, ErrNilHandler
	}
	filters, err := b.snapshotFilters()
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		strategy = SubscribeSequential
	}

	d := newDispatcher(strategy, filtered(filters, h.HandleAsync))
	hn := h.handlerNode()
	if err := hn.node.Attach(b.asyncHandlers, d.close); err != nil {
		return nil, err
	}
	d.id = hn.ID()
	if !b.asyncHandlers.Add(&hn.node, d) {
		hn.node.Release()
		return nil, ErrDisposed
	}

	b.logger.Debug("subscribed async handler",
		slogx.SubscriptionID(d.id),
		slogx.Stringer("strategy", strategy),
		slog.Int("filters", len(filters)),
	)
	return hn, nil
}

func (b *Broker[T]) snapshotFilters() ([]Filter[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrDisposed
	}
	return slices.Clone(b.filters), nil
}

// AddFilter appends a global filter. It applies to handlers subscribed after
// the call, never to existing subscriptions.
func (b *Broker[T]) AddFilter(filter Filter[T]) error {
	if isNil(filter) {
		return ErrNilFilter
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, filter)
	return nil
}

// AddFilterFunc appends fn as a global filter.
func (b *Broker[T]) AddFilterFunc(fn func(ctx context.Context, msg T, next Next[T]) error) error {
	if fn == nil {
		return ErrNilFilter
	}
	return b.AddFilter(FilterFunc[T](fn))
}

// AddPredicate appends a global filter that drops messages for which
// predicate returns false.
func (b *Broker[T]) AddPredicate(predicate func(T) bool) error {
	if predicate == nil {
		return ErrNilFilter
	}
	return b.AddFilter(NewPredicateFilter(predicate))
}

// AddFilterOf appends a zero value of the filter type F as a global filter.
//
//	courier.AddFilterOf[Order, auditFilter](broker)
func AddFilterOf[T any, F any, PF interface {
	*F
	Filter[T]
}](b *Broker[T]) {
	// new(F) is never nil
	_ = b.AddFilter(PF(new(F)))
}

// Close disposes both handler registries. Publishing to a closed broker is a
// no-op and subscribing returns ErrDisposed. A second Close returns
// ErrDisposed.
func (b *Broker[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrDisposed
	}
	b.closed = true
	b.mu.Unlock()

	return errors.Join(b.syncHandlers.Dispose(), b.asyncHandlers.Dispose())
}

// IsClosed reports whether Close has been called.
func (b *Broker[T]) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Publisher returns a view of b limited to publishing.
func (b *Broker[T]) Publisher() Publisher[T] {
	return publisherView[T]{b}
}

// Subscriber returns a view of b limited to subscribing.
func (b *Broker[T]) Subscriber() Subscriber[T] {
	return subscriberView[T]{b}
}
