package streamapi

import (
	"fmt"
	"sync"
)

// portAllocator manages the SRT port space offered to the server when
// starting streams: monotonic increment with wrap-around, skipping ports
// still in use by active streams.
type portAllocator struct {
	mu       sync.Mutex
	next     int
	inUse    map[int]struct{}
	min, max int
}

func newPortAllocator(min, max int) *portAllocator {
	return &portAllocator{
		next:  min,
		min:   min,
		max:   max,
		inUse: make(map[int]struct{}),
	}
}

// alloc returns the next available port, or an error if every port in the
// range is held by an active stream.
func (a *portAllocator) alloc() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.next
	for {
		p := a.next

		// increment-first semantics with wrap
		a.next++
		if a.next > a.max {
			a.next = a.min
		}

		if _, used := a.inUse[p]; !used {
			a.inUse[p] = struct{}{}
			return p, nil
		}

		// wrapped fully → range exhausted
		if a.next == start {
			return 0, fmt.Errorf("no available stream ports in range %d-%d", a.min, a.max)
		}
	}
}

// release returns a port to the free pool. No-op on duplicate releases.
func (a *portAllocator) release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.inUse, port)
}
