package courier

import (
	"context"

	"github.com/casualjim/courier/internal/pipeline"
)

// Next continues delivery to the next filter or the handler.
type Next[T any] func(ctx context.Context, msg T) error

// Filter intercepts messages on their way to a handler. Invoke may pass the
// message on unchanged, pass a transformed message, drop it by not calling
// next, or call next several times. next must not be used after Invoke returns.
type Filter[T any] interface {
	Invoke(ctx context.Context, msg T, next Next[T]) error
}

// FilterFunc adapts a function to Filter.
type FilterFunc[T any] func(ctx context.Context, msg T, next Next[T]) error

func (f FilterFunc[T]) Invoke(ctx context.Context, msg T, next Next[T]) error {
	return f(ctx, msg, next)
}

// PredicateFilter forwards a message only when its predicate holds.
type PredicateFilter[T any] struct {
	predicate func(T) bool
}

// NewPredicateFilter creates a PredicateFilter.
func NewPredicateFilter[T any](predicate func(T) bool) *PredicateFilter[T] {
	return &PredicateFilter[T]{predicate: predicate}
}

func (p *PredicateFilter[T]) Invoke(ctx context.Context, msg T, next Next[T]) error {
	if p.predicate(msg) {
		return next(ctx, msg)
	}
	return nil
}

func newChain[T any](filters []Filter[T]) *pipeline.Chain[T] {
	stages := make([]pipeline.Stage[T], len(filters))
	for i, f := range filters {
		stages[i] = func(ctx context.Context, msg T, next pipeline.Next[T]) error {
			return f.Invoke(ctx, msg, Next[T](next))
		}
	}
	return pipeline.NewChain(stages...)
}

// filtered returns handle wrapped by the filters, or handle itself when there
// are none.
func filtered[T any](filters []Filter[T], handle Next[T]) Next[T] {
	if len(filters) == 0 {
		return handle
	}
	chain := newChain(filters)
	terminal := pipeline.Next[T](handle)
	return func(ctx context.Context, msg T) error {
		return chain.Invoke(ctx, msg, terminal)
	}
}
