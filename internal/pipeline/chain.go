// Package pipeline runs a message through an ordered list of interceptor
// stages before it reaches a terminal handler.
//
// Each stage receives the message, the context and a continuation. A stage may
// forward once, transform the message before forwarding, drop it by returning
// without forwarding, or forward several times. The continuation is only valid
// until the stage returns.
package pipeline

import (
	"context"
	"slices"
	"sync"
)

// Next continues the chain with the next stage or the terminal handler.
type Next[T any] func(context.Context, T) error

// Stage intercepts a message on its way to the terminal handler.
type Stage[T any] func(ctx context.Context, msg T, next Next[T]) error

// Chain is an immutable snapshot of stages, safe to share between goroutines.
type Chain[T any] struct {
	stages []Stage[T]
	pool   sync.Pool
}

// NewChain copies stages into a new chain.
func NewChain[T any](stages ...Stage[T]) *Chain[T] {
	c := &Chain[T]{stages: slices.Clone(stages)}
	c.pool.New = func() any {
		it := &iterator[T]{}
		it.bound = it.next
		return it
	}
	return c
}

// Len returns the number of stages.
func (c *Chain[T]) Len() int {
	return len(c.stages)
}

// Invoke runs msg through every stage and then terminal.
func (c *Chain[T]) Invoke(ctx context.Context, msg T, terminal Next[T]) error {
	if len(c.stages) == 0 {
		return terminal(ctx, msg)
	}

	it := c.rent(terminal)
	defer c.release(it)
	return it.next(ctx, msg)
}

func (c *Chain[T]) rent(terminal Next[T]) *iterator[T] {
	it := c.pool.Get().(*iterator[T])
	it.stages = c.stages
	it.terminal = terminal
	it.cursor = 0
	return it
}

func (c *Chain[T]) release(it *iterator[T]) {
	it.stages = nil
	it.terminal = nil
	it.cursor = 0
	c.pool.Put(it)
}

type iterator[T any] struct {
	stages   []Stage[T]
	terminal Next[T]
	cursor   int
	// bound is it.next, allocated once per pooled iterator
	bound Next[T]
}

func (it *iterator[T]) next(ctx context.Context, msg T) error {
	if it.cursor < len(it.stages) {
		stage := it.stages[it.cursor]
		it.cursor++
		err := stage(ctx, msg, it.bound)
		it.cursor--
		return err
	}
	return it.terminal(ctx, msg)
}
