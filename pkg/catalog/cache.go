package catalog

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/snow-ghost/llmbench/core"
)

// CacheKey identifies one version of a scenario file. A rewritten file gets
// a new key, so stale entries age out of the LRU instead of being served.
type CacheKey struct {
	Path    string
	ModTime time.Time
	Size    int64
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s@%d:%d", k.Path, k.ModTime.UnixNano(), k.Size)
}

// CacheStats represents cache statistics
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Loads   int64   `json:"loads"`
	Shared  int64   `json:"shared"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
}

// CalculateHitRate calculates the hit rate
func (s *CacheStats) CalculateHitRate() {
	total := s.Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	} else {
		s.HitRate = 0.0
	}
}

// DefaultCacheSize bounds the number of parsed file versions kept.
const DefaultCacheSize = 8

// Cache holds parsed scenario files and collapses concurrent parses of the
// same file version into one.
type Cache struct {
	entries *lru.Cache[CacheKey, []core.Scenario]
	group   singleflight.Group

	mu    sync.Mutex
	stats CacheStats
}

// NewCache creates a cache holding up to size file versions.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[CacheKey, []core.Scenario](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Cache{entries: entries, stats: CacheStats{MaxSize: size}}, nil
}

// GetOrLoad returns the scenarios cached under key, calling load at most
// once per key across concurrent callers.
func (c *Cache) GetOrLoad(key CacheKey, load func() ([]core.Scenario, error)) ([]core.Scenario, error) {
	if scenarios, ok := c.entries.Get(key); ok {
		c.count(func(s *CacheStats) { s.Hits++ })
		return scenarios, nil
	}
	c.count(func(s *CacheStats) { s.Misses++ })

	result, err, shared := c.group.Do(key.String(), func() (interface{}, error) {
		c.count(func(s *CacheStats) { s.Loads++ })
		scenarios, err := load()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, scenarios)
		return scenarios, nil
	})
	if shared {
		c.count(func(s *CacheStats) { s.Shared++ })
	}
	if err != nil {
		return nil, err
	}
	return result.([]core.Scenario), nil
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.entries.Len()
	stats.CalculateHitRate()
	return stats
}

func (c *Cache) count(fn func(*CacheStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
