package livesync

import "sync"

// Presence holds the most recent online-user snapshot. Snapshots replace the
// previous set wholesale so a missed leave event cannot leave a stale entry.
type Presence struct {
	mu     sync.RWMutex
	online []int
	index  map[int]struct{}
}

// NewPresence returns an empty tracker.
func NewPresence() *Presence {
	return &Presence{index: make(map[int]struct{})}
}

// Replace installs ids as the authoritative online set, keeping the server's
// order and dropping repeated ids.
func (p *Presence) Replace(ids []int) {
	online := make([]int, 0, len(ids))
	index := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = struct{}{}
		online = append(online, id)
	}

	p.mu.Lock()
	p.online = online
	p.index = index
	p.mu.Unlock()
}

// IsOnline reports whether userID appeared in the last snapshot.
func (p *Presence) IsOnline(userID int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index[userID]
	return ok
}

// Online returns a copy of the last snapshot.
func (p *Presence) Online() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]int(nil), p.online...)
}

// Reset forgets every online user.
func (p *Presence) Reset() {
	p.Replace(nil)
}
