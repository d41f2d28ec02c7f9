package courier

import (
	"errors"
	"reflect"
	"sync"

	"github.com/casualjim/courier/internal/registry"
	"github.com/fogfish/opts"
)

// Hub hands out one Broker per message type, built lazily from shared
// options. Global filters given with WithGlobalFilters are routed to the
// brokers whose type they serve.
type Hub struct {
	brokers registry.Registry[hubEntry]
	options []opts.Option[brokerConfig]

	mu     sync.Mutex
	closed bool
}

type hubEntry struct {
	broker any
	close  func() error
}

// NewHub creates a hub whose brokers are configured with options.
func NewHub(options ...opts.Option[brokerConfig]) *Hub {
	// fail fast on bad options instead of on first use
	_ = newBrokerConfig(options)
	return &Hub{
		brokers: registry.New[hubEntry](),
		options: options,
	}
}

// Of returns the broker for type T, creating it on first use. After the hub
// is closed Of returns a closed broker.
func Of[T any](h *Hub) *Broker[T] {
	key := registry.KeyOf[T]()
	if e, ok := h.brokers.Get(key); ok {
		return e.broker.(*Broker[T])
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		b := New[T](h.options...)
		_ = b.Close()
		return b
	}

	e, _ := h.brokers.GetOrAdd(key, func() hubEntry {
		b := New[T](h.options...)
		return hubEntry{broker: b, close: b.Close}
	})
	return e.broker.(*Broker[T])
}

// PublisherOf returns the publishing view of the broker for T.
func PublisherOf[T any](h *Hub) Publisher[T] {
	return Of[T](h).Publisher()
}

// SubscriberOf returns the subscribing view of the broker for T.
func SubscriberOf[T any](h *Hub) Subscriber[T] {
	return Of[T](h).Subscriber()
}

// Len returns the number of live brokers.
func (h *Hub) Len() int {
	return h.brokers.Len()
}

// Close closes and forgets every broker of the hub. A second Close returns
// ErrDisposed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrDisposed
	}
	h.closed = true

	var (
		errs []error
		keys []reflect.Type
	)
	h.brokers.Range(func(key reflect.Type, e hubEntry) bool {
		if err := e.close(); err != nil {
			errs = append(errs, err)
		}
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		h.brokers.Del(key)
	}
	return errors.Join(errs...)
}
