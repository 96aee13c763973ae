package oracle

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/metrics"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
)

// CacheEntry holds a cached value with its write time and expiry.
type CacheEntry[T any] struct {
	Data      T
	Timestamp time.Time
	ExpiresAt time.Time
}

// lruItem is the list payload: the key is carried so eviction from the
// list tail can also remove the map entry.
type lruItem[V any] struct {
	key   string
	entry CacheEntry[V]
}

// lruStore is a TTL map with LRU eviction: lookups are by key, eviction
// order is maintained in an access-order list (front = most recent).
// Expiry is lazy; entries past ExpiresAt are removed on read. Callers
// hold the owning cache's lock.
type lruStore[V any] struct {
	namespace string
	maxSize   int
	ttl       time.Duration
	entries   map[string]*list.Element
	order     *list.List
}

func newLRUStore[V any](namespace string, maxSize int, ttl time.Duration) *lruStore[V] {
	return &lruStore[V]{
		namespace: namespace,
		maxSize:   maxSize,
		ttl:       ttl,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
	}
}

// get returns a fresh entry and promotes it to most recently used.
// Expired entries are deleted and reported absent.
func (s *lruStore[V]) get(key string, now time.Time) (CacheEntry[V], bool) {
	elem, ok := s.entries[key]
	if !ok {
		metrics.RecordCacheMiss(s.namespace)
		return CacheEntry[V]{}, false
	}

	item := elem.Value.(*lruItem[V])
	if now.After(item.entry.ExpiresAt) {
		s.removeElement(elem)
		metrics.RecordCacheEviction(s.namespace, "expired")
		metrics.RecordCacheMiss(s.namespace)
		return CacheEntry[V]{}, false
	}

	s.order.MoveToFront(elem)
	metrics.RecordCacheHit(s.namespace)
	return item.entry, true
}

// peek returns the entry without expiry checks, deletion, or LRU
// promotion. Used by the stale fallback read path.
func (s *lruStore[V]) peek(key string) (CacheEntry[V], bool) {
	elem, ok := s.entries[key]
	if !ok {
		return CacheEntry[V]{}, false
	}
	return elem.Value.(*lruItem[V]).entry, true
}

// set writes an entry and promotes it, evicting the least recently used
// entry when the store would exceed maxSize.
func (s *lruStore[V]) set(key string, value V, now time.Time) {
	entry := CacheEntry[V]{
		Data:      value,
		Timestamp: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if elem, ok := s.entries[key]; ok {
		elem.Value.(*lruItem[V]).entry = entry
		s.order.MoveToFront(elem)
		return
	}

	elem := s.order.PushFront(&lruItem[V]{key: key, entry: entry})
	s.entries[key] = elem

	if s.order.Len() > s.maxSize {
		if oldest := s.order.Back(); oldest != nil {
			s.removeElement(oldest)
			metrics.RecordCacheEviction(s.namespace, "lru")
		}
	}
}

func (s *lruStore[V]) delete(key string) {
	if elem, ok := s.entries[key]; ok {
		s.removeElement(elem)
	}
}

// deletePrefix removes every entry whose key starts with prefix
func (s *lruStore[V]) deletePrefix(prefix string) {
	for key, elem := range s.entries {
		if strings.HasPrefix(key, prefix) {
			s.removeElement(elem)
		}
	}
}

func (s *lruStore[V]) clear() {
	s.entries = make(map[string]*list.Element)
	s.order.Init()
}

func (s *lruStore[V]) len() int {
	return len(s.entries)
}

func (s *lruStore[V]) removeElement(elem *list.Element) {
	item := elem.Value.(*lruItem[V])
	delete(s.entries, item.key)
	s.order.Remove(elem)
}

// PriceCache caches raw per-(symbol,source) samples and per-symbol
// aggregated results in two namespaces sharing one TTL and one LRU
// capacity each. All methods are safe for concurrent use.
type PriceCache struct {
	mu         sync.Mutex
	prices     *lruStore[sources.PriceSample]
	aggregated *lruStore[AggregatedPrice]
}

// NewPriceCache creates a cache with the given freshness window and
// per-namespace capacity.
func NewPriceCache(ttl time.Duration, maxSize int) (*PriceCache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: cache ttl must be positive", ErrInvalidConfig)
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: cache max size must be positive", ErrInvalidConfig)
	}
	return &PriceCache{
		prices:     newLRUStore[sources.PriceSample]("prices", maxSize, ttl),
		aggregated: newLRUStore[AggregatedPrice]("aggregated", maxSize, ttl),
	}, nil
}

// priceKey builds the raw-sample namespace key. The separator cannot
// appear in normalized symbols, so prefix scans stay unambiguous.
func priceKey(symbol, source string) string {
	return symbol + "|" + source
}

// SetPrice stores a raw sample under its (symbol, source) key
func (c *PriceCache) SetPrice(sample sources.PriceSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices.set(priceKey(sample.Symbol, sample.Source), sample, time.Now())
}

// GetPrice returns a fresh raw sample for (symbol, source)
func (c *PriceCache) GetPrice(symbol, source string) (sources.PriceSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.prices.get(priceKey(symbol, source), time.Now())
	if !ok {
		return sources.PriceSample{}, false
	}
	return entry.Data, true
}

// SetAggregated stores an aggregation result under its symbol
func (c *PriceCache) SetAggregated(price AggregatedPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggregated.set(price.Symbol, price, time.Now())
}

// GetAggregated returns a fresh aggregation result for the symbol
func (c *PriceCache) GetAggregated(symbol string) (AggregatedPrice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.aggregated.get(symbol, time.Now())
	if !ok {
		return AggregatedPrice{}, false
	}
	return entry.Data, true
}

// GetAggregatedStale returns the cached aggregation result for the
// symbol even past its ExpiresAt, as long as it was written within
// maxAge. The entry is neither deleted nor promoted.
func (c *PriceCache) GetAggregatedStale(symbol string, maxAge time.Duration) (AggregatedPrice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.aggregated.peek(symbol)
	if !ok {
		return AggregatedPrice{}, false
	}
	if time.Since(entry.Timestamp) > maxAge {
		return AggregatedPrice{}, false
	}
	return entry.Data, true
}

// Invalidate drops the symbol's aggregated entry and its raw samples
// across all sources.
func (c *PriceCache) Invalidate(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggregated.delete(symbol)
	c.prices.deletePrefix(symbol + "|")
}

// InvalidateSource drops the raw sample for one (symbol, source) pair
func (c *PriceCache) InvalidateSource(symbol, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices.delete(priceKey(symbol, source))
}

// InvalidateAll drops everything from both namespaces
func (c *PriceCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices.clear()
	c.aggregated.clear()
}

// Stats returns current entry counts
func (c *PriceCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	priceCount := c.prices.len()
	aggregatedCount := c.aggregated.len()
	return CacheStats{
		PriceCount:      priceCount,
		AggregatedCount: aggregatedCount,
		TotalSize:       priceCount + aggregatedCount,
	}
}
