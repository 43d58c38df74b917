package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerline/ledgerline/internal/model"
)

func TestContentHashIgnoresID(t *testing.T) {
	a := model.Notification{ID: "n1", Type: model.NotifyLowStock, Title: "Low stock", Body: "2 left"}
	b := model.Notification{ID: "n2", Type: model.NotifyLowStock, Title: "Low stock", Body: "2 left"}

	assert.Equal(t, contentHash(a), contentHash(b))
}

func TestContentHashFieldBoundaries(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide across field boundaries.
	a := model.Notification{Type: model.NotifyLowStock, Title: "ab", Body: "c"}
	b := model.Notification{Type: model.NotifyLowStock, Title: "a", Body: "bc"}

	assert.NotEqual(t, contentHash(a), contentHash(b))
}

func TestSeenRecentlyWithinWindow(t *testing.T) {
	c := newDedupCache(10 * time.Second)
	now := time.Now()

	assert.False(t, c.SeenRecently("h1", now))
	assert.True(t, c.SeenRecently("h1", now.Add(5*time.Second)))
}

func TestSeenRecentlyExpiredWindow(t *testing.T) {
	c := newDedupCache(10 * time.Second)
	now := time.Now()

	assert.False(t, c.SeenRecently("h1", now))
	assert.False(t, c.SeenRecently("h1", now.Add(11*time.Second)))
}

func TestSeenRecentlySlidesWindow(t *testing.T) {
	c := newDedupCache(10 * time.Second)
	now := time.Now()

	c.Record("h1", now)
	// Each sighting refreshes the window start.
	assert.True(t, c.SeenRecently("h1", now.Add(8*time.Second)))
	assert.True(t, c.SeenRecently("h1", now.Add(16*time.Second)))
}

func TestPruneDropsStaleEntries(t *testing.T) {
	c := newDedupCache(10 * time.Second)
	now := time.Now()

	c.Record("old", now.Add(-30*time.Second))
	c.Record("fresh", now)

	c.Prune(now)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.SeenRecently("fresh", now))
}
