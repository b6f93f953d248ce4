package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sandkasten/broker/internal/session"
)

func TestNearCacheSetGet(t *testing.T) {
	c := newNearCache(time.Minute, 10)
	sess := &session.Session{ID: "s1"}
	c.set(sess)

	got, ok := c.get("s1")
	assert.True(t, ok)
	assert.Equal(t, sess, got)
}

func TestNearCacheExpiresEntries(t *testing.T) {
	c := newNearCache(10*time.Millisecond, 10)
	c.set(&session.Session{ID: "s1"})
	time.Sleep(20 * time.Millisecond)

	_, ok := c.get("s1")
	assert.False(t, ok)
}

func TestNearCacheEvictsWhenFull(t *testing.T) {
	c := newNearCache(time.Minute, 2)
	c.set(&session.Session{ID: "s1"})
	c.set(&session.Session{ID: "s2"})
	c.set(&session.Session{ID: "s3"})

	assert.LessOrEqual(t, len(c.entries), 2)
}

func TestNearCacheDelete(t *testing.T) {
	c := newNearCache(time.Minute, 10)
	c.set(&session.Session{ID: "s1"})
	c.delete("s1")

	_, ok := c.get("s1")
	assert.False(t, ok)
}
