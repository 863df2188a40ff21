// Package resultcache implements a generic, content-hash-keyed LRU cache
// with a TTL, bounded by both entry count and estimated byte size.
package resultcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"analysisbridge/internal/contenthash"
)

// Entry is a snapshot of one cached value, mirroring spec's CacheEntry<T>.
type Entry[T any] struct {
	Value          T
	ContentHash    contenthash.Digest
	CreatedAtMS    int64
	LastAccessedMS int64
	Hits           int64
	SizeBytes      int64
}

// Stats summarizes cache occupancy and hit behavior.
type Stats struct {
	Entries    int
	TotalBytes int64
	HitRate    float64
	MissRate   float64
	Evictions  int64
}

type node[T any] struct {
	uri   string
	entry Entry[T]
}

// Cache is a thread-safe, generic LRU cache keyed by uri and validated by
// content hash and TTL.
type Cache[T any] struct {
	mu sync.Mutex

	maxEntries int
	maxBytes   int64
	ttl        time.Duration

	byURI map[string]*list.Element // uri -> element holding *node[T]
	order *list.List               // front = most recently used, back = least

	totalBytes int64
	hitCount   int64
	missCount  int64
	evictions  int64

	now func() time.Time
}

// New creates an empty cache. maxEntries <= 0 means unlimited entries;
// maxBytes <= 0 means unlimited bytes.
func New[T any](maxEntries int, maxBytes int64, ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		ttl:        ttl,
		byURI:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the cached value for uri if present, its stored hash equals
// hash, and it has not exceeded the TTL. A TTL of zero or less means every
// entry is always considered expired (spec: "never valid").
func (c *Cache[T]) Get(uri string, hash contenthash.Digest) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.byURI[uri]
	if !ok {
		c.missCount++
		return zero, false
	}
	n := el.Value.(*node[T])

	if n.entry.ContentHash != hash {
		c.removeElement(el)
		c.missCount++
		return zero, false
	}

	nowMS := c.now().UnixMilli()
	elapsed := time.Duration(nowMS-n.entry.CreatedAtMS) * time.Millisecond
	if c.ttl <= 0 || elapsed > c.ttl {
		c.removeElement(el)
		c.missCount++
		return zero, false
	}

	n.entry.Hits++
	n.entry.LastAccessedMS = nowMS
	c.order.MoveToFront(el)
	c.hitCount++
	return n.entry.Value, true
}

// Set stores value under uri, replacing any prior entry, and triggers
// eviction if the configured bounds are exceeded.
func (c *Cache[T]) Set(uri string, hash contenthash.Digest, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byURI[uri]; ok {
		c.removeElement(el)
	}

	nowMS := c.now().UnixMilli()
	n := &node[T]{
		uri: uri,
		entry: Entry[T]{
			Value:          value,
			ContentHash:    hash,
			CreatedAtMS:    nowMS,
			LastAccessedMS: nowMS,
			SizeBytes:      estimateSize(value),
		},
	}

	el := c.order.PushFront(n)
	c.byURI[uri] = el
	c.totalBytes += n.entry.SizeBytes

	c.evict()
}

// Invalidate deletes the entry for uri if present.
func (c *Cache[T]) Invalidate(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byURI[uri]; ok {
		c.removeElement(el)
	}
}

// Clear wipes all entries and counters.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byURI = make(map[string]*list.Element)
	c.order = list.New()
	c.totalBytes = 0
	c.hitCount = 0
	c.missCount = 0
	c.evictions = 0
}

// Stats returns current cache metrics.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hitCount + c.missCount
	var hitRate, missRate float64
	if total > 0 {
		hitRate = float64(c.hitCount) / float64(total)
		missRate = float64(c.missCount) / float64(total)
	}
	return Stats{
		Entries:    len(c.byURI),
		TotalBytes: c.totalBytes,
		HitRate:    hitRate,
		MissRate:   missRate,
		Evictions:  c.evictions,
	}
}

// Len returns the current entry count without affecting LRU order.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byURI)
}

// removeElement deletes an element from both the map and the LRU list and
// accounts for its byte estimate. Caller must hold c.mu.
func (c *Cache[T]) removeElement(el *list.Element) {
	n := el.Value.(*node[T])
	delete(c.byURI, n.uri)
	c.order.Remove(el)
	c.totalBytes -= n.entry.SizeBytes
}

// evict removes least-recently-used entries until both bounds hold.
// Caller must hold c.mu.
func (c *Cache[T]) evict() {
	for {
		overEntries := c.maxEntries > 0 && len(c.byURI) > c.maxEntries
		overBytes := c.maxBytes > 0 && c.totalBytes > c.maxBytes
		if !overEntries && !overBytes {
			return
		}
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeElement(back)
		c.evictions++
	}
}

// estimateSize produces a deterministic byte-size estimate for value by
// serializing it with MessagePack and measuring the encoded length. The
// estimate need not be exact, only deterministic and symmetric with removal.
func estimateSize[T any](value T) int64 {
	data, err := msgpack.Marshal(value)
	if err != nil {
		// Fall back to a small fixed estimate rather than failing the
		// insert; size accounting stays internally consistent either way.
		return 64
	}
	return int64(len(data))
}
