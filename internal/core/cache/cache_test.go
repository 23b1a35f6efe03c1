package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNormalizesCaseAndWhitespace(t *testing.T) {
	base := Key("What is RAG?")

	assert.Equal(t, base, Key(" what is rag? "))
	assert.Equal(t, base, Key("WHAT IS RAG?"))
	assert.NotEqual(t, base, Key("What is RAG"))
	assert.Len(t, base, 16)
}

func TestCacheRoundTrip(t *testing.T) {
	c := New()

	value, found := c.Get("absent")
	assert.False(t, found)
	assert.Nil(t, value)

	c.Set("k", "v", 0)
	value, found = c.Get("k")
	require.True(t, found)
	assert.Equal(t, "v", value)

	// 同じキーへのSetは常に上書きする
	c.Set("k", "v2", 0)
	value, found = c.Get("k")
	require.True(t, found)
	assert.Equal(t, "v2", value)
}

func TestCacheExpiry(t *testing.T) {
	current := time.Unix(1000, 0)
	c := New(WithClock(func() time.Time { return current }))

	c.Set("k", "v", 10*time.Second)

	_, found := c.Get("k")
	assert.True(t, found)

	current = current.Add(11 * time.Second)
	_, found = c.Get("k")
	assert.False(t, found)
	assert.Equal(t, 0, c.Len())
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New()
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	c.Delete("a")
	_, found := c.Get("a")
	assert.False(t, found)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%4)
			for j := 0; j < 100; j++ {
				c.Set(key, j, 0)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 4)
}
