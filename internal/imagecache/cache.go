package imagecache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	// Deck images arrive as jpeg/png/gif plus webp from the transform CDN.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Fetcher retrieves the raw bytes behind a transformed image URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// entry records the decode state of one transformed URL. Failed fetches
// are cached too, so a broken URL is not refetched for every card render;
// it gets another chance once retryFailedAfter has passed.
type entry struct {
	decoded      bool
	failed       bool
	failedAt     time.Time
	lastAccessed time.Time
}

const retryFailedAfter = 30 * time.Second

type Config struct {
	Capacity int
}

// Cache keeps decode results for the next cards of the swipe deck so they
// render without decode latency. Capacity is fixed; the least recently
// accessed entry is evicted first, and reads refresh recency.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, *entry]
	capacity  int
	evictions int64

	fetcher Fetcher
	group   singleflight.Group
	logger  *zap.Logger
	now     func() time.Time
}

type Stats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Evictions int64 `json:"evictions"`
}

func New(fetcher Fetcher, cfg Config, log *zap.Logger) (*Cache, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 50
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Cache{
		fetcher:  fetcher,
		capacity: cfg.Capacity,
		logger:   log,
		now:      time.Now,
	}

	entries, err := lru.NewWithEvict(cfg.Capacity, func(string, *entry) {
		c.evictions++
	})
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	c.entries = entries

	return c, nil
}

// IsReady reports whether the URL has been fetched and successfully
// decoded. The lookup counts as an access and refreshes recency.
func (c *Cache) IsReady(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(url)
	if !ok {
		return false
	}
	e.lastAccessed = c.now()

	return e.decoded && !e.failed
}

// Preload fetches, decodes and caches the URL. It reports success and
// never fails the caller: a load or decode error caches a negative entry
// and returns false. Repeated preloads of a cached URL, failed ones
// included, do not refetch. Concurrent preloads of one URL share a
// single fetch.
func (c *Cache) Preload(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	if ready, cached := c.lookup(url); cached {
		return ready
	}

	v, _, _ := c.group.Do(url, func() (any, error) {
		return c.load(ctx, url), nil
	})

	return v.(bool)
}

// lookup reports the cached outcome for the URL, refreshing recency. A
// failed entry keeps answering until its retry cooldown passes, then the
// URL is treated as uncached so the next preload retries it.
func (c *Cache) lookup(url string) (ready, cached bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(url)
	if !ok {
		return false, false
	}
	e.lastAccessed = c.now()

	if e.failed {
		return false, c.now().Sub(e.failedAt) < retryFailedAfter
	}
	return e.decoded, true
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:   c.entries.Len(),
		Capacity:  c.capacity,
		Evictions: c.evictions,
	}
}

func (c *Cache) load(ctx context.Context, url string) bool {
	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.logger.Debug("image fetch failed", zap.String("url", url), zap.Error(err))
		c.insert(url, &entry{failed: true, failedAt: c.now(), lastAccessed: c.now()})
		return false
	}

	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		c.logger.Debug("image decode failed", zap.String("url", url), zap.Error(err))
		c.insert(url, &entry{failed: true, failedAt: c.now(), lastAccessed: c.now()})
		return false
	}

	c.insert(url, &entry{decoded: true, lastAccessed: c.now()})
	return true
}

func (c *Cache) insert(url string, e *entry) {
	c.mu.Lock()
	c.entries.Add(url, e)
	c.mu.Unlock()
}
