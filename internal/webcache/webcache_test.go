package webcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCacheRoundTrip(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.GetFetch("https://example.com")
	assert.False(t, ok)

	c.SetFetch("https://example.com", "hello world")
	got, ok := c.GetFetch("https://example.com")
	assert.True(t, ok)
	assert.Equal(t, "hello world", got)
}

func TestSearchCacheNormalizesQuery(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	require.NoError(t, err)
	defer c.Close()

	c.SetSearch("  Go Routines  ", "result text")
	got, ok := c.GetSearch("go routines")
	assert.True(t, ok)
	assert.Equal(t, "result text", got)
}

func TestNilCacheIsSafeNoOp(t *testing.T) {
	var c *Cache
	_, ok := c.GetFetch("x")
	assert.False(t, ok)
	c.SetFetch("x", "y") // must not panic
}
