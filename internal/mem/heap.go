package mem

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoEnoughMemory is returned when an allocation would exceed the heap limit.
var ErrNoEnoughMemory = errors.New("no enough memory")

// Heap hands out word-aligned stack regions and tracks how many bytes are
// outstanding. A zero limit means unlimited.
type Heap struct {
	mu     sync.Mutex
	limit  Size
	inUse  Size
	allocs int
}

// NewHeap creates a heap that refuses to have more than limit bytes
// outstanding at once.
func NewHeap(limit Size) *Heap {
	return &Heap{limit: limit}
}

// AllocStack returns a zeroed region of at least n bytes.
func (h *Heap) AllocStack(n Size) ([]uint64, error) {
	if n == 0 {
		return nil, fmt.Errorf("mem: zero sized stack")
	}
	words := n.Words()
	size := Size(words) * 8

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limit != 0 && h.inUse+size > h.limit {
		return nil, fmt.Errorf("%w: want %d bytes, %d of %d in use", ErrNoEnoughMemory, size, h.inUse, h.limit)
	}
	h.inUse += size
	h.allocs++
	return make([]uint64, words), nil
}

// FreeStack returns a region obtained from AllocStack.
func (h *Heap) FreeStack(s []uint64) {
	if s == nil {
		return
	}
	h.mu.Lock()
	h.inUse -= Size(len(s)) * 8
	h.allocs--
	h.mu.Unlock()
}

// InUse returns the number of bytes currently allocated.
func (h *Heap) InUse() Size {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse
}

// Allocations returns the number of live allocations.
func (h *Heap) Allocations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocs
}
