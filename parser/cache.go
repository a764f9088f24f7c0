package parser

import (
	"sync"
	"time"

	"github.com/hadi77ir/go-catalog/query"
)

// cacheEntry represents a cached parse result
type cacheEntry struct {
	node        query.Node
	err         error
	accessCount int64
	lastAccess  time.Time
	addedAt     time.Time
}

// ParserCache is a thread-safe cache for parsed filter strings.
// It prioritizes keeping most frequently used and recently added filters.
// Cached trees are shared between callers and must not be mutated.
type ParserCache struct {
	mu      sync.Mutex
	cache   map[string]*cacheEntry
	maxSize int
	hits    int64
	misses  int64
	now     func() time.Time // For testing
}

// NewParserCache creates a new parser cache
// maxSize: maximum number of entries to cache. 0 means no caching (all calls go directly to parser)
func NewParserCache(maxSize int) *ParserCache {
	return &ParserCache{
		cache:   make(map[string]*cacheEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Parse parses the filter string, checking the cache first
func (c *ParserCache) Parse(input string) (query.Node, error) {
	if c == nil || c.maxSize <= 0 {
		return Parse(input)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.cache[input]; exists {
		c.hits++
		entry.accessCount++
		entry.lastAccess = c.now()
		return entry.node, entry.err
	}

	c.misses++
	node, err := Parse(input)
	c.addToCache(input, node, err)
	return node, err
}

// addToCache adds an entry to the cache, evicting if necessary
func (c *ParserCache) addToCache(input string, node query.Node, err error) {
	if len(c.cache) >= c.maxSize {
		c.evict()
	}

	now := c.now()
	c.cache[input] = &cacheEntry{
		node:        node,
		err:         err,
		accessCount: 1,
		lastAccess:  now,
		addedAt:     now,
	}
}

// evict removes the least valuable entry from the cache.
// Access frequency outweighs recency of addition and access.
func (c *ParserCache) evict() {
	var worstKey string
	var worstScore float64
	first := true

	now := c.now()
	for key, entry := range c.cache {
		ageSinceAdded := now.Sub(entry.addedAt).Seconds()
		ageSinceAccess := now.Sub(entry.lastAccess).Seconds()
		recencyScore := 1.0/(ageSinceAdded+1.0) + 1.0/(ageSinceAccess+1.0)
		score := float64(entry.accessCount)*10.0 + recencyScore

		if first || score < worstScore {
			worstScore = score
			worstKey = key
			first = false
		}
	}

	if !first {
		delete(c.cache, worstKey)
	}
}

// Clear clears all entries from the cache
func (c *ParserCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cacheEntry)
	c.hits, c.misses = 0, 0
}

// Size returns the current number of cached entries
func (c *ParserCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// CacheStats describes cache usage
type CacheStats struct {
	Size    int
	Hits    int64
	Misses  int64
	HitRate float64
}

// GetStats returns current cache statistics
func (c *ParserCache) GetStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{Size: len(c.cache), Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}
