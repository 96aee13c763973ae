package oracle

import (
	"testing"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheSample(symbol, source string, price float64) sources.PriceSample {
	return sources.PriceSample{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Timestamp: time.Now(),
		Source:    source,
	}
}

func TestNewPriceCacheValidation(t *testing.T) {
	_, err := NewPriceCache(0, 10)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPriceCache(time.Minute, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCachePriceRoundTrip(t *testing.T) {
	cache, err := NewPriceCache(time.Minute, 10)
	require.NoError(t, err)

	cache.SetPrice(cacheSample("XLM", "coingecko", 0.12))

	got, ok := cache.GetPrice("XLM", "coingecko")
	require.True(t, ok)
	assert.Equal(t, "0.12", got.Price.String())

	_, ok = cache.GetPrice("XLM", "binance")
	assert.False(t, ok)
	_, ok = cache.GetPrice("BTC", "coingecko")
	assert.False(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, err := NewPriceCache(50*time.Millisecond, 10)
	require.NoError(t, err)

	cache.SetPrice(cacheSample("XLM", "coingecko", 0.12))

	_, ok := cache.GetPrice("XLM", "coingecko")
	assert.True(t, ok, "entry must be retrievable before the TTL elapses")

	time.Sleep(80 * time.Millisecond)

	_, ok = cache.GetPrice("XLM", "coingecko")
	assert.False(t, ok, "entry must be absent after the TTL elapses")
	assert.Equal(t, 0, cache.Stats().PriceCount, "expired entry is dropped on read")
}

func TestCacheLRUEvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewPriceCache(time.Minute, 2)
	require.NoError(t, err)

	cache.SetPrice(cacheSample("A", "s", 1))
	cache.SetPrice(cacheSample("B", "s", 2))

	// Touching A makes B the least recently used entry.
	_, ok := cache.GetPrice("A", "s")
	require.True(t, ok)

	cache.SetPrice(cacheSample("C", "s", 3))

	_, ok = cache.GetPrice("A", "s")
	assert.True(t, ok, "recently read entry must survive")
	_, ok = cache.GetPrice("B", "s")
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = cache.GetPrice("C", "s")
	assert.True(t, ok)
}

func TestCacheLRUSetPromotes(t *testing.T) {
	cache, err := NewPriceCache(time.Minute, 2)
	require.NoError(t, err)

	cache.SetPrice(cacheSample("A", "s", 1))
	cache.SetPrice(cacheSample("B", "s", 2))
	cache.SetPrice(cacheSample("A", "s", 10))
	cache.SetPrice(cacheSample("C", "s", 3))

	got, ok := cache.GetPrice("A", "s")
	require.True(t, ok, "rewritten entry must survive")
	assert.Equal(t, "10", got.Price.String())
	_, ok = cache.GetPrice("B", "s")
	assert.False(t, ok)
}

func TestCacheAggregatedRoundTrip(t *testing.T) {
	cache, err := NewPriceCache(time.Minute, 10)
	require.NoError(t, err)

	cache.SetAggregated(AggregatedPrice{
		Symbol:    "XLM",
		Price:     decimal.NewFromFloat(0.120),
		Timestamp: time.Now(),
	})

	got, ok := cache.GetAggregated("XLM")
	require.True(t, ok)
	assert.Equal(t, "XLM", got.Symbol)

	_, ok = cache.GetAggregated("BTC")
	assert.False(t, ok)
}

func TestCacheGetAggregatedStale(t *testing.T) {
	cache, err := NewPriceCache(30*time.Millisecond, 10)
	require.NoError(t, err)

	cache.SetAggregated(AggregatedPrice{
		Symbol:    "XLM",
		Price:     decimal.NewFromFloat(0.120),
		Timestamp: time.Now(),
	})

	time.Sleep(60 * time.Millisecond)

	// The stale read ignores expiry and keeps the entry in place.
	got, ok := cache.GetAggregatedStale("XLM", 10*time.Minute)
	require.True(t, ok, "stale read must see the expired entry")
	assert.Equal(t, "0.12", got.Price.String())
	assert.Equal(t, 1, cache.Stats().AggregatedCount, "stale read must not delete the entry")

	_, ok = cache.GetAggregatedStale("XLM", 10*time.Millisecond)
	assert.False(t, ok, "entry older than maxAge is not served")

	// A regular read still applies lazy expiry.
	_, ok = cache.GetAggregated("XLM")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Stats().AggregatedCount)
}

func TestCacheInvalidateSymbol(t *testing.T) {
	cache, err := NewPriceCache(time.Minute, 10)
	require.NoError(t, err)

	cache.SetPrice(cacheSample("XLM", "coingecko", 0.12))
	cache.SetPrice(cacheSample("XLM", "binance", 0.121))
	cache.SetPrice(cacheSample("BTC", "coingecko", 42000))
	cache.SetAggregated(AggregatedPrice{Symbol: "XLM", Price: decimal.NewFromFloat(0.12), Timestamp: time.Now()})
	cache.SetAggregated(AggregatedPrice{Symbol: "BTC", Price: decimal.NewFromFloat(42000), Timestamp: time.Now()})

	cache.Invalidate("XLM")

	_, ok := cache.GetPrice("XLM", "coingecko")
	assert.False(t, ok)
	_, ok = cache.GetPrice("XLM", "binance")
	assert.False(t, ok)
	_, ok = cache.GetAggregated("XLM")
	assert.False(t, ok)

	_, ok = cache.GetPrice("BTC", "coingecko")
	assert.True(t, ok, "other symbols must be untouched")
	_, ok = cache.GetAggregated("BTC")
	assert.True(t, ok)
}

func TestCacheInvalidateSource(t *testing.T) {
	cache, err := NewPriceCache(time.Minute, 10)
	require.NoError(t, err)

	cache.SetPrice(cacheSample("XLM", "coingecko", 0.12))
	cache.SetPrice(cacheSample("XLM", "binance", 0.121))
	cache.SetPrice(cacheSample("BTC", "coingecko", 42000))

	cache.InvalidateSource("coingecko")

	_, ok := cache.GetPrice("XLM", "coingecko")
	assert.False(t, ok)
	_, ok = cache.GetPrice("BTC", "coingecko")
	assert.False(t, ok)
	_, ok = cache.GetPrice("XLM", "binance")
	assert.True(t, ok)
}

func TestCacheInvalidateAllAndStats(t *testing.T) {
	cache, err := NewPriceCache(time.Minute, 10)
	require.NoError(t, err)

	cache.SetPrice(cacheSample("XLM", "coingecko", 0.12))
	cache.SetPrice(cacheSample("BTC", "coingecko", 42000))
	cache.SetAggregated(AggregatedPrice{Symbol: "XLM", Price: decimal.NewFromFloat(0.12), Timestamp: time.Now()})

	stats := cache.Stats()
	assert.Equal(t, 2, stats.PriceCount)
	assert.Equal(t, 1, stats.AggregatedCount)
	assert.Equal(t, 3, stats.TotalSize)

	cache.InvalidateAll()

	stats = cache.Stats()
	assert.Equal(t, 0, stats.PriceCount)
	assert.Equal(t, 0, stats.AggregatedCount)
	assert.Equal(t, 0, stats.TotalSize)
}
