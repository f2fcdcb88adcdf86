package generic

import "sync"

// Pool is a typed sync.Pool. Values are reset before they are returned.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
}

func NewPool[T any](generate func() T, reset func(T)) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
		reset: reset,
	}
}

// NewHotPool is NewPool with hotSize values allocated up front.
func NewHotPool[T any](generate func() T, reset func(T), hotSize int) *Pool[T] {
	p := NewPool[T](generate, reset)
	for range hotSize {
		p.pool.Put(generate())
	}
	return p
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	if p.reset != nil {
		p.reset(value)
	}
	p.pool.Put(value)
}
