package courier

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/casualjim/courier/internal/handlerlist"
)

var (
	// ErrNilHandler is returned when a nil handler is subscribed.
	ErrNilHandler = errors.New("handler is required")

	// ErrNilFilter is returned when a nil filter, filter func or predicate is added.
	ErrNilFilter = errors.New("filter is required")

	// ErrAlreadySubscribed is returned when a handler that is already attached
	// to a broker is subscribed again.
	ErrAlreadySubscribed = handlerlist.ErrAttached

	// ErrDisposed is returned for operations on a disposed subscription,
	// broker or hub, including a second Unsubscribe or Close.
	ErrDisposed = handlerlist.ErrDisposed
)

// PanicError carries a panic recovered from a handler or filter.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", p.Value)
}

// Unwrap exposes the panic value when it is an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

func recoverAsError(err *error) {
	if r := recover(); r != nil {
		*err = &PanicError{Value: r, Stack: debug.Stack()}
	}
}
