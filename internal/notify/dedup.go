package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ledgerline/ledgerline/internal/model"
)

// contentHash derives a stable fingerprint from the fields that identify
// an event's content. Two events with the same type, title, and body are
// the same event even when they arrive with different ids from
// overlapping delivery channels.
func contentHash(n model.Notification) string {
	h := sha256.New()
	h.Write([]byte(n.Type))
	h.Write([]byte{0})
	h.Write([]byte(n.Title))
	h.Write([]byte{0})
	h.Write([]byte(n.Body))
	return hex.EncodeToString(h.Sum(nil))
}

// dedupCache remembers recently seen content hashes for a fixed window.
type dedupCache struct {
	window time.Duration
	seen   map[string]time.Time
}

func newDedupCache(window time.Duration) *dedupCache {
	return &dedupCache{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// SeenRecently reports whether hash was recorded within the window, and
// records it either way so the window slides forward.
func (c *dedupCache) SeenRecently(hash string, now time.Time) bool {
	at, ok := c.seen[hash]
	c.seen[hash] = now
	return ok && now.Sub(at) < c.window
}

// Record notes a hash without checking it.
func (c *dedupCache) Record(hash string, now time.Time) {
	c.seen[hash] = now
}

// Prune drops entries older than twice the window, bounding memory.
func (c *dedupCache) Prune(now time.Time) {
	cutoff := now.Add(-2 * c.window)
	for hash, at := range c.seen {
		if at.Before(cutoff) {
			delete(c.seen, hash)
		}
	}
}

// Len returns the number of cached hashes.
func (c *dedupCache) Len() int {
	return len(c.seen)
}
