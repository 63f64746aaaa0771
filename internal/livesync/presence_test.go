package livesync

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceReplacesWholesale(t *testing.T) {
	p := NewPresence()
	p.Replace([]int{1, 2, 3})
	p.Replace([]int{3, 4})

	assert.Equal(t, []int{3, 4}, p.Online())
	assert.False(t, p.IsOnline(1), "a user missing from the latest snapshot is offline")
	assert.True(t, p.IsOnline(4))
}

func TestPresenceDropsRepeatedIDs(t *testing.T) {
	p := NewPresence()
	p.Replace([]int{5, 2, 5, 2, 9})
	assert.Equal(t, []int{5, 2, 9}, p.Online())
}

func TestPresenceMatchesLastSnapshotExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := NewPresence()
	var last []int
	for i := 0; i < 200; i++ {
		snap := make([]int, rng.Intn(8))
		for j := range snap {
			snap[j] = rng.Intn(10) + 1
		}
		p.Replace(snap)
		last = snap
	}

	want := map[int]bool{}
	for _, id := range last {
		want[id] = true
	}
	for id := 1; id <= 10; id++ {
		assert.Equal(t, want[id], p.IsOnline(id), "user %d", id)
	}
	assert.Len(t, p.Online(), len(want))
}

func TestPresenceOnlineReturnsCopy(t *testing.T) {
	p := NewPresence()
	p.Replace([]int{1})
	got := p.Online()
	got[0] = 99
	assert.True(t, p.IsOnline(1))

	p.Reset()
	assert.Empty(t, p.Online())
	assert.False(t, p.IsOnline(1))
}
