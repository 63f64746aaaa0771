package livesync

import "sync"

// UnreadCounters counts inbound messages per counterpart since the
// conversation was last opened.
type UnreadCounters struct {
	mu     sync.Mutex
	counts map[int]int
}

// NewUnreadCounters returns zeroed counters.
func NewUnreadCounters() *UnreadCounters {
	return &UnreadCounters{counts: make(map[int]int)}
}

// Increment records one inbound message from counterpart.
func (u *UnreadCounters) Increment(counterpart int) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counts[counterpart]++
	return u.counts[counterpart]
}

// Clear zeroes the counter for counterpart.
func (u *UnreadCounters) Clear(counterpart int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.counts, counterpart)
}

// Count returns the counter for counterpart.
func (u *UnreadCounters) Count(counterpart int) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[counterpart]
}

// Total is the badge value: the sum over every counterpart.
func (u *UnreadCounters) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	total := 0
	for _, n := range u.counts {
		total += n
	}
	return total
}

// Snapshot returns a copy of the non-zero counters.
func (u *UnreadCounters) Snapshot() map[int]int {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[int]int, len(u.counts))
	for k, v := range u.counts {
		out[k] = v
	}
	return out
}

// Reset drops every counter.
func (u *UnreadCounters) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counts = make(map[int]int)
}
