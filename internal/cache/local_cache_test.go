package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalCache_GetSet(t *testing.T) {
	c := NewLocalCache[[]string](10, time.Minute)
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []string{"a", "b"}, 0)
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	c.Set("k", []string{"c"}, 0)
	assert.Equal(t, 1, c.Len(), "覆盖不增加条目数")

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLocalCache_Expiry(t *testing.T) {
	c := NewLocalCache[int](10, time.Minute)
	defer c.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)

	now = now.Add(2 * time.Second)

	_, ok := c.Get("short")
	assert.False(t, ok, "过期条目不可见")
	v, ok := c.Get("long")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLocalCache_Eviction(t *testing.T) {
	c := NewLocalCache[int](3, time.Minute)
	defer c.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		c.now = func() time.Time { return at }
		c.Set(fmt.Sprintf("k%d", i), i, 0)
	}

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok, "最早过期的条目被淘汰")
	_, ok = c.Get("k4")
	assert.True(t, ok)
}

func TestLocalCache_Clear(t *testing.T) {
	c := NewLocalCache[string](0, time.Minute)
	defer c.Close()

	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Clear()

	assert.Equal(t, 0, c.Len())
	c.Close()
}
