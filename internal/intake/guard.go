package intake

import (
	"sync"
	"time"
)

// inflightGuard marks (conversation, content) submissions currently being
// processed so concurrent identical submissions collapse to one persisted
// message. Entries store their acquisition time; anything older than ttl
// is treated as absent, which bounds the damage of a release that never
// ran.
type inflightGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
}

func newInflightGuard(ttl time.Duration) *inflightGuard {
	return &inflightGuard{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// acquire claims a key. Returns false while a live claim for the same key
// exists.
func (g *inflightGuard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if at, exists := g.entries[key]; exists && now.Sub(at) < g.ttl {
		return false
	}

	g.entries[key] = now
	return true
}

// release clears a claim. Idempotent.
func (g *inflightGuard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
}
