package courier

import (
	"context"
	"reflect"

	"github.com/casualjim/courier/internal/handlerlist"
)

// Subscription is the handle returned by Subscribe and SubscribeAwait.
type Subscription interface {
	ID() string
	// Unsubscribe detaches the handler. Async invocations that have not
	// started, including sequential ones still queued, are skipped; a running
	// invocation finishes unless its strategy is Switch, which cancels it.
	// A second call returns ErrDisposed.
	Unsubscribe() error
	IsDisposed() bool
}

// HandlerNode ties a handler to the broker it is subscribed to.
//
// Embed it in custom handler types to satisfy Handler or AsyncHandler:
//
//	type auditLog struct {
//		courier.HandlerNode
//		w io.Writer
//	}
//
//	func (a *auditLog) Handle(ctx context.Context, e OrderPlaced) error {
//		_, err := fmt.Fprintln(a.w, e.ID)
//		return err
//	}
//
// A handler value can be subscribed once. After Unsubscribe it is disposed
// and cannot be subscribed again.
type HandlerNode struct {
	node handlerlist.Node
}

func (h *HandlerNode) handlerNode() *HandlerNode { return h }

// ID returns the subscription id, empty until the handler is subscribed.
func (h *HandlerNode) ID() string { return h.node.ID() }

// Unsubscribe detaches the handler from its broker and disposes it.
func (h *HandlerNode) Unsubscribe() error { return h.node.Dispose() }

// IsDisposed reports whether the handler was unsubscribed.
func (h *HandlerNode) IsDisposed() bool { return h.node.IsDisposed() }

// Handler is invoked on the publisher's goroutine, in registration order.
type Handler[T any] interface {
	Handle(ctx context.Context, msg T) error
	handlerNode() *HandlerNode
}

// AsyncHandler is invoked on its own goroutine according to the
// SubscribeStrategy chosen at subscription time.
type AsyncHandler[T any] interface {
	HandleAsync(ctx context.Context, msg T) error
	handlerNode() *HandlerNode
}

// FuncHandler adapts a function to Handler.
type FuncHandler[T any] struct {
	HandlerNode
	fn func(context.Context, T) error
}

// NewHandler wraps fn in a Handler.
func NewHandler[T any](fn func(context.Context, T) error) *FuncHandler[T] {
	return &FuncHandler[T]{fn: fn}
}

func (f *FuncHandler[T]) Handle(ctx context.Context, msg T) error {
	return f.fn(ctx, msg)
}

// AsyncFuncHandler adapts a function to AsyncHandler.
type AsyncFuncHandler[T any] struct {
	HandlerNode
	fn func(context.Context, T) error
}

// NewAsyncHandler wraps fn in an AsyncHandler.
func NewAsyncHandler[T any](fn func(context.Context, T) error) *AsyncFuncHandler[T] {
	return &AsyncFuncHandler[T]{fn: fn}
}

func (f *AsyncFuncHandler[T]) HandleAsync(ctx context.Context, msg T) error {
	return f.fn(ctx, msg)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
