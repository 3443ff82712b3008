// Package ring provides a fixed-capacity, overwrite-oldest event store.
//
// The backing array is allocated once at construction; a push in the steady
// state never allocates. Overflow silently evicts the oldest entry: bounded
// memory is the contract, not an error condition.
package ring

import (
	"fmt"
	"sync"
)

// MaxCapacity bounds what a single ring may be asked to hold. Construction
// fails fast above it rather than risking exhaustion during ingestion.
const MaxCapacity = 1 << 20

// Ring is a concurrency-safe circular buffer of the most recent Capacity
// values. A snapshot taken concurrently with pushes sees a consistent copy;
// a concurrent push either is or is not included, never torn.
type Ring[T any] struct {
	mu   sync.RWMutex
	buf  []T
	head int // next write index
	size int
}

// New creates a ring with the given fixed capacity.
func New[T any](capacity int) (*Ring[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("ring: capacity must be >= 1, got %d", capacity)
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("ring: capacity %d exceeds maximum %d", capacity, MaxCapacity)
	}
	return &Ring[T]{buf: make([]T, capacity)}, nil
}

// Push appends v, evicting the oldest entry once the ring is full. O(1).
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
	r.mu.Unlock()
}

// Len returns the number of stored values, at most Cap.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the fixed capacity chosen at construction.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Snapshot returns a copy of up to limit stored values. With newestFirst the
// most recent value comes first; otherwise values run oldest to newest.
// limit <= 0 means all stored values.
func (r *Ring[T]) Snapshot(limit int, newestFirst bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	if newestFirst {
		for i := 0; i < n; i++ {
			idx := (r.head - 1 - i + len(r.buf)*2) % len(r.buf)
			out = append(out, r.buf[idx])
		}
		return out
	}
	// Oldest first, still bounded to the n most recent values.
	start := r.size - n
	for i := start; i < r.size; i++ {
		idx := (r.head - r.size + i + len(r.buf)*2) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Filter returns a copy of all stored values matching pred, oldest first.
func (r *Ring[T]) Filter(pred func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0)
	for i := 0; i < r.size; i++ {
		idx := (r.head - r.size + i + len(r.buf)*2) % len(r.buf)
		if pred(r.buf[idx]) {
			out = append(out, r.buf[idx])
		}
	}
	return out
}
