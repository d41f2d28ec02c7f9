// Package registry keeps one value per Go type in a lock-free map.
package registry

import (
	"reflect"

	"github.com/alphadose/haxmap"
)

// Registry maps Go types to values. Types are matched by identity, so two
// distinct types that print the same never share an entry.
type Registry[T any] interface {
	Get(key reflect.Type) (T, bool)
	GetOrAdd(key reflect.Type, value func() T) (T, bool)
	Del(key reflect.Type)
	Range(fn func(key reflect.Type, value T) bool)
	Len() int
}

type slot[T any] struct {
	typ   reflect.Type
	value T
}

type registry[T any] struct {
	values *haxmap.Map[uintptr, slot[T]]
}

func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[uintptr, slot[T]](),
	}
}

func (r *registry[T]) Get(key reflect.Type) (T, bool) {
	s, ok := r.values.Get(typeID(key))
	return s.value, ok
}

func (r *registry[T]) GetOrAdd(key reflect.Type, valueFn func() T) (T, bool) {
	s, loaded := r.values.GetOrCompute(typeID(key), func() slot[T] {
		return slot[T]{typ: key, value: valueFn()}
	})
	return s.value, loaded
}

func (r *registry[T]) Del(key reflect.Type) {
	r.values.Del(typeID(key))
}

func (r *registry[T]) Range(fn func(key reflect.Type, value T) bool) {
	r.values.ForEach(func(_ uintptr, s slot[T]) bool {
		return fn(s.typ, s.value)
	})
}

func (r *registry[T]) Len() int {
	return int(r.values.Len())
}

// KeyOf returns the registry key for the type M.
func KeyOf[M any]() reflect.Type {
	return reflect.TypeFor[M]()
}

// typeID is the address of the runtime type descriptor, unique per type.
func typeID(t reflect.Type) uintptr {
	return reflect.ValueOf(t).Pointer()
}
