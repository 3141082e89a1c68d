package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type marketMeta struct {
	Ticker    string
	EventTime time.Time
}

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()
	c, err := NewRistrettoCache(&RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c.(*RistrettoCache)
}

func TestRistrettoCache_SetAndGet(t *testing.T) {
	c := newTestCache(t)

	meta := &marketMeta{Ticker: "TEAMA", EventTime: time.Now()}
	require.True(t, c.Set("market:TEAMA", meta, time.Hour))
	c.Wait()

	got, found := c.Get("market:TEAMA")
	require.True(t, found)
	assert.Same(t, meta, got)
}

func TestRistrettoCache_MissingKey(t *testing.T) {
	c := newTestCache(t)

	_, found := c.Get("market:UNKNOWN")
	assert.False(t, found)
}

func TestRistrettoCache_Delete(t *testing.T) {
	c := newTestCache(t)

	c.Set("market:TEAMA", &marketMeta{Ticker: "TEAMA"}, time.Hour)
	c.Wait()
	_, found := c.Get("market:TEAMA")
	require.True(t, found)

	c.Delete("market:TEAMA")

	_, found = c.Get("market:TEAMA")
	assert.False(t, found)
}

func TestRistrettoCache_TTLExpires(t *testing.T) {
	c := newTestCache(t)

	c.Set("market:TEAMA", &marketMeta{Ticker: "TEAMA"}, 100*time.Millisecond)
	c.Wait()

	_, found := c.Get("market:TEAMA")
	require.True(t, found)

	time.Sleep(200 * time.Millisecond)

	_, found = c.Get("market:TEAMA")
	assert.False(t, found)
}

func TestRistrettoCache_Clear(t *testing.T) {
	c := newTestCache(t)

	c.Set("market:TEAMA", &marketMeta{Ticker: "TEAMA"}, time.Hour)
	c.Set("market:TEAMB", &marketMeta{Ticker: "TEAMB"}, time.Hour)
	c.Wait()

	if _, found := c.Get("market:TEAMA"); !found {
		t.Skip("entry not admitted; admission is probabilistic")
	}

	c.Clear()

	_, foundA := c.Get("market:TEAMA")
	_, foundB := c.Get("market:TEAMB")
	assert.False(t, foundA)
	assert.False(t, foundB)
}
