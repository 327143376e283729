package recorder

import "sync"

// tailBuffer is a thread-safe circular buffer retaining the most recent
// pipeline output lines, with O(1) append and O(N) read.
type tailBuffer struct {
	entries [500]string  // fixed-size circular buffer
	head    int          // next write position
	size    int          // current number of entries
	full    bool         // whether the buffer has wrapped around
	mu      sync.RWMutex // protects all fields
}

// Append adds a line (overwrites the oldest if full).
func (b *tailBuffer) Append(entry string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	const capN = len(b.entries)

	b.entries[b.head] = entry
	b.head = (b.head + 1) % capN

	if b.full {
		return
	}
	b.size++
	if b.size == capN {
		b.full = true
	}
}

// Tail returns the last N lines, newest → oldest, in a new slice the caller
// owns. lines <= 0 or > capacity is clamped to capacity.
func (b *tailBuffer) Tail(lines int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	const capN = len(b.entries)
	if b.size == 0 {
		return nil
	}

	if lines <= 0 || lines > capN {
		lines = capN
	}
	n := b.size
	if n > lines {
		n = lines
	}

	var newest int
	if b.full {
		// head points at the oldest (next overwrite); newest is one behind
		newest = (b.head - 1 + capN) % capN
	} else {
		newest = b.size - 1
	}

	result := make([]string, n)
	for i := 0; i < n; i++ {
		result[i] = b.entries[(newest-i+capN)%capN]
	}
	return result
}
