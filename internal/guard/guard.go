// Package guard provides short-lived signal deduplication so a webhook
// retried by the sender does not open a second position.
package guard

import (
	"sync"
	"time"
)

// SignalGuard remembers recently seen signal keys for a fixed TTL. It is safe
// for concurrent use.
type SignalGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// New creates a SignalGuard with the given TTL. A non-positive TTL disables
// deduplication: every signal registers as new.
func New(ttl time.Duration) *SignalGuard {
	return &SignalGuard{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Register records the key and reports whether it was new within the TTL
// window. Expired entries are pruned on every call so the map stays bounded
// by the signal rate.
func (g *SignalGuard) Register(key string) bool {
	if g.ttl <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, at := range g.seen {
		if now.Sub(at) >= g.ttl {
			delete(g.seen, k)
		}
	}

	if _, dup := g.seen[key]; dup {
		return false
	}
	g.seen[key] = now
	return true
}

// Len reports the number of live entries, used by tests.
func (g *SignalGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
