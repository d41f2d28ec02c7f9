package courier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/courier/pkg/slogx"
)

// slowSubscriberTimeout bounds how long Stream blocks a publisher on a full
// channel before dropping the message.
const slowSubscriberTimeout = 100 * time.Millisecond

// First subscribes to s and waits for the next message. It returns ctx.Err()
// when ctx ends first. The subscription is removed before First returns.
func First[T any](ctx context.Context, s Subscriber[T]) (T, error) {
	result := make(chan T, 1)
	var once sync.Once

	sub, err := SubscribeFunc(s, func(_ context.Context, msg T) error {
		once.Do(func() { result <- msg })
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	defer func() { _ = sub.Unsubscribe() }()

	select {
	case msg := <-result:
		return msg, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Stream subscribes to s and delivers every message on the returned channel
// until ctx ends or the subscription is unsubscribed, at which point the
// channel is closed. A consumer that keeps the channel full for longer than
// 100ms loses the message being delivered.
func Stream[T any](ctx context.Context, s Subscriber[T], buffer int) (<-chan T, Subscription, error) {
	st := &stream[T]{ch: make(chan T, max(buffer, 0)), done: make(chan struct{})}

	h := &streamHandler[T]{stream: st}
	if _, err := s.Subscribe(h); err != nil {
		return nil, nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = h.Unsubscribe()
		case <-st.done:
		}
		st.close()
	}()
	return st.ch, h, nil
}

// streamHandler signals the stream when it is unsubscribed directly.
type streamHandler[T any] struct {
	HandlerNode
	stream *stream[T]
}

func (h *streamHandler[T]) Handle(ctx context.Context, msg T) error {
	return h.stream.send(ctx, msg)
}

func (h *streamHandler[T]) Unsubscribe() error {
	err := h.HandlerNode.Unsubscribe()
	if err == nil {
		close(h.stream.done)
	}
	return err
}

type stream[T any] struct {
	mu     sync.RWMutex
	ch     chan T
	done   chan struct{}
	closed bool
}

func (s *stream[T]) send(ctx context.Context, msg T) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	select {
	case s.ch <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(slowSubscriberTimeout)
	defer timer.Stop()
	select {
	case s.ch <- msg:
	case <-timer.C:
		slog.WarnContext(ctx, "stream consumer too slow, dropping message", slogx.MessageType[T]())
	case <-ctx.Done():
	}
	return nil
}

func (s *stream[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
