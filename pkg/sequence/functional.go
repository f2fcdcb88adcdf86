package sequence

import (
	"iter"
	"sort"
)

// Iterator is a generic, immutable, chainable iterator for any type T.
// Iterators built from a generator function are lazy and restartable: every
// range re-runs the generator from the beginning.
type Iterator[T any] struct {
	seq iter.Seq[T]
}

// New wraps a sequence function.
func New[T any](seq iter.Seq[T]) *Iterator[T] {
	return &Iterator[T]{seq: seq}
}

// From creates a new Iterator from a slice of T.
func From[T any](data []T) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			for _, v := range data {
				if !yield(v) {
					return
				}
			}
		},
	}
}

// Seq returns the underlying sequence function for use with range.
func (i *Iterator[T]) Seq() iter.Seq[T] {
	return i.seq
}

// Collect exhausts the iterator and returns a slice of all elements.
func (i *Iterator[T]) Collect() []T {
	var out []T
	i.seq(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Sort returns a new Iterator with elements sorted according to the provided less function.
func (i *Iterator[T]) Sort(less func(a, b T) bool) *Iterator[T] {
	data := i.Collect()
	sort.SliceStable(data, func(a, b int) bool {
		return less(data[a], data[b])
	})
	return From(data)
}

// Filter returns a new Iterator containing only elements that satisfy the predicate.
func (i *Iterator[T]) Filter(pred func(T) bool) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			i.seq(func(v T) bool {
				if pred(v) {
					return yield(v)
				}
				return true
			})
		},
	}
}

// Find returns the first element matching the predicate, or false if not found.
func (i *Iterator[T]) Find(pred func(T) bool) (T, bool) {
	var zero T
	found := false
	i.seq(func(v T) bool {
		if pred(v) {
			zero = v
			found = true
			return false
		}
		return true
	})
	return zero, found
}

// Any returns true if any element matches the predicate.
func (i *Iterator[T]) Any(pred func(T) bool) bool {
	_, found := i.Find(pred)
	return found
}

// All returns true if all elements match the predicate.
func (i *Iterator[T]) All(pred func(T) bool) bool {
	return !i.Any(func(v T) bool { return !pred(v) })
}

// Take returns a new Iterator with the first n elements.
func (i *Iterator[T]) Take(n int) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			if n <= 0 {
				return
			}
			count := 0
			i.seq(func(v T) bool {
				if !yield(v) {
					return false
				}
				count++
				return count < n
			})
		},
	}
}

// Map returns a lazy iterator applying fn to every element.
func Map[T any, R any](it *Iterator[T], fn func(T) R) *Iterator[R] {
	return &Iterator[R]{
		seq: func(yield func(R) bool) {
			it.seq(func(v T) bool {
				return yield(fn(v))
			})
		},
	}
}
