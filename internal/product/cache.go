package product

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fbmonitor/internal/domain"
)

// ProductStore is where cached products are flushed.
type ProductStore interface {
	SaveProduct(ctx context.Context, p domain.ProductInfo) error
}

type cacheEntry struct {
	info  domain.ProductInfo
	dirty bool
}

// Cache holds products by id and persists changed entries on Flush.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	store   ProductStore
	logger  *slog.Logger
}

func NewCache(store ProductStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{entries: make(map[string]*cacheEntry), store: store, logger: logger}
}

// cacheKey prefers the listing id and falls back to the title.
func cacheKey(p domain.ProductInfo) string {
	if p.ID != "" {
		return p.ID
	}
	if p.Title != "" {
		return "title:" + strings.ToLower(p.Title)
	}
	return ""
}

// Put merges p into the cached entry and marks it for persisting.
func (c *Cache) Put(p domain.ProductInfo) domain.ProductInfo {
	k := cacheKey(p)
	if k == "" {
		return p
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		e = &cacheEntry{}
		c.entries[k] = e
	}
	merged := e.info.Merge(p)
	if merged != e.info {
		e.info = merged
		e.dirty = true
	}
	return e.info
}

func (c *Cache) Get(key string) (domain.ProductInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return domain.ProductInfo{}, false
	}
	return e.info, true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush writes dirty entries to the store and returns how many were saved.
func (c *Cache) Flush(ctx context.Context) int {
	if c.store == nil {
		return 0
	}
	c.mu.Lock()
	var dirty []*cacheEntry
	for _, e := range c.entries {
		if e.dirty {
			dirty = append(dirty, e)
		}
	}
	c.mu.Unlock()

	saved := 0
	for _, e := range dirty {
		c.mu.Lock()
		info := e.info
		c.mu.Unlock()
		if err := c.store.SaveProduct(ctx, info); err != nil {
			c.logger.Warn("save product failed", "product", info.Title, "err", err)
			continue
		}
		c.mu.Lock()
		if e.info == info {
			e.dirty = false
		}
		c.mu.Unlock()
		saved++
	}
	if saved > 0 {
		c.logger.Debug("product cache flushed", "saved", saved)
	}
	return saved
}

// Run flushes every interval until ctx ends, then flushes once more.
func (c *Cache) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Flush(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

// Service combines the extractor and the cache. It satisfies the chat
// manager's product lookup.
type Service struct {
	extractor *Extractor
	cache     *Cache
}

func NewService(extractor *Extractor, cache *Cache) *Service {
	return &Service{extractor: extractor, cache: cache}
}

// Extract reads the page and the chat header, merges what it finds and
// caches the result.
func (s *Service) Extract(page, header string) (domain.ProductInfo, bool) {
	info, _ := s.extractor.FromHTML(page)
	if fromHeader, ok := s.extractor.FromHeader(header); ok {
		if info.Title == "" {
			info.Title = fromHeader.Title
		}
		if info.Price == "" {
			info.Price = fromHeader.Price
		}
		info.Context = fromHeader.Context
	}
	if info.IsEmpty() {
		return info, false
	}
	if s.cache != nil {
		info = s.cache.Put(info)
	}
	return info, true
}
