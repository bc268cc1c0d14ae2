package stream

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/clonar-ai/answer-engine/config"
)

// Cache is a bounded true-LRU map of streaming sessions. Get refreshes
// recency; inserting into a full cache evicts exactly the least-recently
// touched entry. Evicted sessions cannot resume; late updates for an
// evicted id are dropped silently by callers finding no session.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recent
	items    map[string]*list.Element

	staleAfter time.Duration
	sweep      *cronexpr.Expression
	logger     *log.Logger
}

type cacheEntry struct {
	id      string
	session *Session
}

func NewCache(cfg config.StreamConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	expr, err := cronexpr.Parse(cfg.SweepSpec)
	if err != nil {
		return nil, fmt.Errorf("parse stream.sweep_spec %q: %w", cfg.SweepSpec, err)
	}
	return &Cache{
		capacity:   cfg.Capacity,
		order:      list.New(),
		items:      make(map[string]*list.Element),
		staleAfter: cfg.StaleAfter,
		sweep:      expr,
		logger:     log.New(log.Writer(), "[STREAM] ", log.LstdFlags),
	}, nil
}

// Get returns the session for id and marks it most recently used.
func (c *Cache) Get(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	s := el.Value.(*cacheEntry).session
	s.touch()
	return s, true
}

// Put inserts or replaces the session under id, evicting the least
// recently used entry first when the cache is full.
func (c *Cache) Put(id string, s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		el.Value.(*cacheEntry).session = s
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.capacity {
		c.evictOldestLocked()
	}
	c.items[id] = c.order.PushFront(&cacheEntry{id: id, session: s})
}

// Remove drops the session; called at stream end.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
		delete(c.items, id)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) evictOldestLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	entry := el.Value.(*cacheEntry)
	c.order.Remove(el)
	delete(c.items, entry.id)
	c.logger.Printf("evicted session %s (capacity %d)", entry.id, c.capacity)
}

// SweepStale removes entries idle longer than the staleness threshold,
// independent of capacity pressure. Returns the number removed.
func (c *Cache) SweepStale(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*cacheEntry)
		if now.Sub(entry.session.last()) > c.staleAfter {
			c.order.Remove(el)
			delete(c.items, entry.id)
			removed++
		}
		el = prev
	}
	if removed > 0 {
		c.logger.Printf("swept %d stale sessions", removed)
	}
	return removed
}

// RunSweeper blocks, sweeping stale sessions on the configured cron
// cadence until ctx is cancelled.
func (c *Cache) RunSweeper(ctx context.Context) {
	for {
		next := c.sweep.Next(time.Now())
		if next.IsZero() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			c.SweepStale(time.Now())
		}
	}
}
