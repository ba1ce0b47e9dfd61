package dispatcher

import "sync"

// dedupRing is a fixed-capacity ring buffer + set of seen keys
// (spec.md §9: "implement as a ring array + set; never as a set-only").
// On insert past capacity, the oldest entry is evicted from both the
// ring and the set.
type dedupRing struct {
	mu       sync.Mutex
	capacity int
	ring     []string
	pos      int
	filled   bool
	seen     map[string]struct{}
}

func newDedupRing(capacity int) *dedupRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &dedupRing{
		capacity: capacity,
		ring:     make([]string, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// seenOrAdd reports whether key was already present. If not present,
// it is inserted, evicting the oldest entry if the ring is at capacity.
func (d *dedupRing) seenOrAdd(key string) (wasSeen bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}

	if d.filled {
		oldest := d.ring[d.pos]
		delete(d.seen, oldest)
	}

	d.ring[d.pos] = key
	d.seen[key] = struct{}{}
	d.pos++
	if d.pos >= d.capacity {
		d.pos = 0
		d.filled = true
	}
	return false
}

// size returns the current count of tracked keys, for diagnostics.
func (d *dedupRing) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
