package monitor

import (
	"github.com/bmharper/ringbuffer"
)

// boundedRing keeps the most recent 'limit' values.
// RingT drops its reference to an evicted item, so nothing older than 'limit' stays reachable.
type boundedRing[T any] struct {
	ring ringbuffer.RingT[T]
}

func newBoundedRing[T any](limit int) boundedRing[T] {
	return boundedRing[T]{
		ring: ringbuffer.NewRingT[T](max(limit, 1)),
	}
}

func (r *boundedRing[T]) Add(v T) {
	r.ring.Add(&v)
}

func (r *boundedRing[T]) Len() int {
	return r.ring.Len()
}

// Items returns a copy of the values, oldest first
func (r *boundedRing[T]) Items() []T {
	out := make([]T, r.ring.Len())
	for i := range out {
		out[i] = *r.ring.Peek(i)
	}
	return out
}

// ringPointers returns the items of a RingT, oldest first
func ringPointers[T any](r *ringbuffer.RingT[T]) []*T {
	out := make([]*T, r.Len())
	for i := range out {
		out[i] = r.Peek(i)
	}
	return out
}
