package limiter

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool caps the number of concurrent holders. Callers acquire a slot
// around each unit of work and release it when done.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool returns a pool with size slots. size is at least 1.
func NewPool(size int) *Pool {
	n := int64(max(1, size))
	return &Pool{sem: semaphore.NewWeighted(n), size: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire.
func (p *Pool) Release() {
	p.sem.Release(1)
}

// Size returns the slot count.
func (p *Pool) Size() int {
	return int(p.size)
}
