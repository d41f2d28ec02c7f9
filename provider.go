package courier

import (
	"reflect"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FilterProvider supplies global filters for brokers of type T.
type FilterProvider[T any] interface {
	GlobalFilters() []Filter[T]
}

// FilterSet is an ordered, de-duplicated collection of filters. It is itself a
// FilterProvider, so sets can be composed.
type FilterSet[T any] struct {
	filters []Filter[T]
}

// NewFilterSet collects the filters for type T out of untyped values followed
// by typed ones. An untyped value contributes when it is a Filter[T] or a
// FilterProvider[T]; anything else is skipped. A filter seen more than once
// keeps its first position.
func NewFilterSet[T any](untyped []any, typed ...Filter[T]) *FilterSet[T] {
	seen := orderedmap.New[any, Filter[T]]()
	add := func(f Filter[T]) {
		if isNil(f) {
			return
		}
		var key any = f
		if !reflect.ValueOf(f).Comparable() {
			key = new(int)
		}
		if _, ok := seen.Get(key); ok {
			return
		}
		seen.Set(key, f)
	}

	for _, v := range untyped {
		switch x := v.(type) {
		case Filter[T]:
			add(x)
		case FilterProvider[T]:
			if isNil(x) {
				continue
			}
			for _, f := range x.GlobalFilters() {
				add(f)
			}
		}
	}
	for _, f := range typed {
		add(f)
	}

	set := &FilterSet[T]{filters: make([]Filter[T], 0, seen.Len())}
	for pair := seen.Oldest(); pair != nil; pair = pair.Next() {
		set.filters = append(set.filters, pair.Value)
	}
	return set
}

// GlobalFilters returns a copy of the filters in order.
func (s *FilterSet[T]) GlobalFilters() []Filter[T] {
	return slices.Clone(s.filters)
}

// Len returns the number of filters in the set.
func (s *FilterSet[T]) Len() int {
	return len(s.filters)
}
