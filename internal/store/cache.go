package store

import (
	"sync"
	"time"

	"github.com/sandkasten/broker/internal/session"
)

// nearCache is a bounded, TTL-bounded process-local cache of sessions,
// swept lazily on access rather than by a background goroutine.
type nearCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]cacheEntry
}

type cacheEntry struct {
	sess     *session.Session
	expireAt time.Time
}

func newNearCache(ttl time.Duration, maxSize int) *nearCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &nearCache{ttl: ttl, maxSize: maxSize, entries: make(map[string]cacheEntry)}
}

func (c *nearCache) get(id string) (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expireAt) {
		delete(c.entries, id)
		return nil, false
	}
	return e.sess, true
}

func (c *nearCache) set(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOneExpiredOrOldest()
	}
	c.entries[sess.ID] = cacheEntry{sess: sess, expireAt: time.Now().Add(c.ttl)}
}

func (c *nearCache) delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// evictOneExpiredOrOldest makes room for a new entry when the cache is
// full. Must be called with c.mu held.
func (c *nearCache) evictOneExpiredOrOldest() {
	now := time.Now()
	var oldestID string
	var oldestExpireAt time.Time

	for id, e := range c.entries {
		if now.After(e.expireAt) {
			delete(c.entries, id)
			return
		}
		if oldestID == "" || e.expireAt.Before(oldestExpireAt) {
			oldestID, oldestExpireAt = id, e.expireAt
		}
	}
	if oldestID != "" {
		delete(c.entries, oldestID)
	}
}
