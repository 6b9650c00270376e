package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	_, _ = c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUExpiresEntries(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](10, time.Minute).WithClock(clock.now)
	c.Set("owner-1", 1)
	c.Set("owner-2", 2)

	clock.t = clock.t.Add(30 * time.Second)
	c.Set("owner-2", 22)

	clock.t = clock.t.Add(45 * time.Second)
	_, ok := c.Get("owner-1")
	assert.False(t, ok)

	assert.Equal(t, 0, c.CleanExpired())
	v, ok := c.Get("owner-2")
	assert.True(t, ok)
	assert.Equal(t, 22, v)

	clock.t = clock.t.Add(time.Hour)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestLRUDelete(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)
	c.Set("k", 1)
	c.Delete("k")
	c.Delete("missing")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestManagerSweep(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	a := NewLRUCache[int](4, time.Second).WithClock(clock.now)
	b := NewLRUCache[string](4, time.Second).WithClock(clock.now)
	a.Set("x", 1)
	b.Set("y", "z")

	m := NewManager(nil)
	m.Register(a)
	m.Register(b)
	assert.Equal(t, 0, m.Sweep())

	clock.t = clock.t.Add(2 * time.Second)
	assert.Equal(t, 2, m.Sweep())

	m.StartCleanup(context.Background(), time.Hour)
	m.Stop()
	m.Stop()
}

func TestStatsCountHitsAndMisses(t *testing.T) {
	a := NewLRUCache[int](4, time.Minute)
	a.Set("k", 1)
	_, _ = a.Get("k")
	_, _ = a.Get("k")
	_, _ = a.Get("other")
	assert.Equal(t, Stats{Hits: 2, Misses: 1, Size: 1}, a.Stats())

	b := NewLRUCache[string](4, time.Minute)
	_, _ = b.Get("x")

	m := NewManager(nil)
	m.Register(a)
	m.Register(b)
	assert.Equal(t, Stats{Hits: 2, Misses: 2, Size: 1}, m.Stats())
}
