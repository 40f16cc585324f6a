package processor

import (
	"sync"

	"github.com/snow-ghost/llmbench/core"
)

// slotBuffer holds one result per iteration, indexed by iteration number.
// Each slot is written at most once and nothing is written after close.
type slotBuffer struct {
	mu     sync.Mutex
	slots  []core.IterationResult
	filled []bool
	closed bool
}

func newSlotBuffer(n int) *slotBuffer {
	return &slotBuffer{
		slots:  make([]core.IterationResult, n),
		filled: make([]bool, n),
	}
}

// put stores the result of iteration i (1-based). It reports false when
// the buffer is closed or the slot was already written.
func (b *slotBuffer) put(i int, res core.IterationResult) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || i < 1 || i > len(b.slots) || b.filled[i-1] {
		return false
	}
	b.slots[i-1] = res
	b.filled[i-1] = true
	return true
}

// close seals the buffer and returns the results in iteration order when
// every slot was filled.
func (b *slotBuffer) close() ([]core.IterationResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, ok := range b.filled {
		if !ok {
			return nil, false
		}
	}
	out := make([]core.IterationResult, len(b.slots))
	copy(out, b.slots)
	return out, true
}
