package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := &ttlCache[string, int]{items: map[string]entry[int]{}, now: func() time.Time { return now }}

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "branding:123", Key(" Branding ", "", "123"))
}
