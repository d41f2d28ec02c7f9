package registry

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderPlaced struct{ ID string }

func TestRegistry(t *testing.T) {
	t.Run("get or add creates once", func(t *testing.T) {
		r := New[*int]()
		var calls atomic.Int32
		mk := func() *int {
			calls.Add(1)
			v := 42
			return &v
		}

		v1, loaded := r.GetOrAdd(KeyOf[int](), mk)
		assert.False(t, loaded)
		v2, loaded := r.GetOrAdd(KeyOf[int](), mk)
		assert.True(t, loaded)
		assert.Same(t, v1, v2)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("get, range and delete", func(t *testing.T) {
		r := New[string]()
		r.GetOrAdd(KeyOf[int](), func() string { return "A" })
		r.GetOrAdd(KeyOf[string](), func() string { return "B" })

		v, ok := r.Get(KeyOf[int]())
		require.True(t, ok)
		assert.Equal(t, "A", v)
		assert.Equal(t, 2, r.Len())

		seen := map[reflect.Type]string{}
		r.Range(func(k reflect.Type, v string) bool {
			seen[k] = v
			return true
		})
		assert.Equal(t, map[reflect.Type]string{KeyOf[int](): "A", KeyOf[string](): "B"}, seen)

		r.Del(KeyOf[int]())
		_, ok = r.Get(KeyOf[int]())
		assert.False(t, ok)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("concurrent get or add returns a single value", func(t *testing.T) {
		r := New[*int]()
		var wg sync.WaitGroup
		results := make([]*int, 32)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], _ = r.GetOrAdd(KeyOf[orderPlaced](), func() *int { return new(int) })
			}()
		}
		wg.Wait()
		for _, v := range results {
			assert.Same(t, results[0], v)
		}
	})
}

func localA() reflect.Type {
	type event struct{ A int }
	return KeyOf[event]()
}

func localB() reflect.Type {
	type event struct{ B string }
	return KeyOf[event]()
}

func TestKeyOf(t *testing.T) {
	assert.Equal(t, KeyOf[orderPlaced](), KeyOf[orderPlaced]())
	assert.NotEqual(t, KeyOf[orderPlaced](), KeyOf[*orderPlaced]())

	t.Run("types with the same name stay apart", func(t *testing.T) {
		a, b := localA(), localB()
		require.Equal(t, a.String(), b.String())

		r := New[string]()
		r.GetOrAdd(a, func() string { return "a" })
		r.GetOrAdd(b, func() string { return "b" })

		va, _ := r.Get(a)
		vb, _ := r.Get(b)
		assert.Equal(t, "a", va)
		assert.Equal(t, "b", vb)
		assert.Equal(t, 2, r.Len())
	})
}
