package typecache

import (
	"time"

	"analysisbridge/internal/contenthash"
	"analysisbridge/internal/resultcache"
)

// Cache is a result cache decorated with a dependency graph: invalidating
// a file cascades to every file that transitively depends on it.
type Cache[T any] struct {
	cache *resultcache.Cache[T]
	graph *DepGraph
}

// New creates an empty type cache with the given bounds.
func New[T any](maxEntries int, maxBytes int64, ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		cache: resultcache.New[T](maxEntries, maxBytes, ttl),
		graph: NewDepGraph(),
	}
}

// Get delegates to the underlying result cache.
func (c *Cache[T]) Get(uri string, hash contenthash.Digest) (T, bool) {
	return c.cache.Get(uri, hash)
}

// Set delegates to the underlying result cache.
func (c *Cache[T]) Set(uri string, hash contenthash.Digest, value T) {
	c.cache.Set(uri, hash, value)
}

// Invalidate delegates to the underlying result cache; it does not cascade
// on its own — callers that want cascading invalidation use
// InvalidateCascade.
func (c *Cache[T]) Invalidate(uri string) {
	c.cache.Invalidate(uri)
}

// Clear wipes cache entries, counters, and the dependency graph.
func (c *Cache[T]) Clear() {
	c.cache.Clear()
	c.graph = NewDepGraph()
}

// Stats delegates to the underlying result cache.
func (c *Cache[T]) Stats() resultcache.Stats {
	return c.cache.Stats()
}

// AddDependency records that `from` imports `to`.
func (c *Cache[T]) AddDependency(from, to string) {
	c.graph.AddDependency(from, to)
}

// ClearDependencies drops all outgoing edges of `from`, used before
// re-recording the current import set of a re-analyzed file.
func (c *Cache[T]) ClearDependencies(from string) {
	c.graph.ClearDependencies(from)
}

// DependsOn returns the files `uri` directly imports.
func (c *Cache[T]) DependsOn(uri string) []string {
	return c.graph.DependsOn(uri)
}

// DependedOnBy returns the files that directly import `uri`.
func (c *Cache[T]) DependedOnBy(uri string) []string {
	return c.graph.DependedOnBy(uri)
}

// DependencySnapshot returns every recorded dependsOn edge, for the
// inspector's composed query.
func (c *Cache[T]) DependencySnapshot() []Edge {
	return c.graph.Snapshot()
}

// InvalidateCascade drops the cache entry for every file reachable from uri
// by walking dependedOnBy edges (including uri itself), and returns that
// closure.
func (c *Cache[T]) InvalidateCascade(uri string) []string {
	closure := c.graph.ReverseClosure(uri)
	for _, v := range closure {
		c.cache.Invalidate(v)
	}
	return closure
}
