// Package cache provides a threadsafe LRU for blob bytes, used as a
// read-through layer in front of network-backed entity stores.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Size      int
	Capacity  int
	Evictions int64
	Expired   int64
}

// Cache is a threadsafe LRU with optional TTL expiry. Values are copied in
// and out so callers may not alias cached bytes.
type Cache struct {
	mu          sync.RWMutex
	ll          *list.List
	items       map[string]*list.Element
	capacity    int
	ttl         time.Duration
	stats       Stats
	cleanupStop context.CancelFunc
	cleanupDone chan struct{}
}

type entry struct {
	key    string
	value  []byte
	expire time.Time
}

// New returns a cache with the given capacity and ttl. If ttl > 0 a
// background goroutine periodically drops expired entries; Close stops it.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1024
	}
	c := &Cache{
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		capacity: capacity,
		ttl:      ttl,
	}
	if ttl > 0 {
		c.cleanupDone = make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		c.cleanupStop = cancel
		go c.cleanupExpired(ctx, ttl)
	}
	return c
}

// Get retrieves a copy of the value if present and not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ele, ok := c.items[key]
	if !ok {
		atomic.AddInt64(&c.stats.Misses, 1)
		return nil, false
	}
	ent := ele.Value.(*entry)
	if c.ttl > 0 && time.Now().After(ent.expire) {
		c.removeElement(ele)
		atomic.AddInt64(&c.stats.Expired, 1)
		atomic.AddInt64(&c.stats.Misses, 1)
		return nil, false
	}
	c.ll.MoveToFront(ele)
	atomic.AddInt64(&c.stats.Hits, 1)
	return append([]byte(nil), ent.value...), true
}

// Set inserts or updates an entry with a copy of value.
func (c *Cache) Set(key string, value []byte) {
	data := append([]byte(nil), value...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.items[key]; ok {
		c.ll.MoveToFront(ele)
		ent := ele.Value.(*entry)
		ent.value = data
		if c.ttl > 0 {
			ent.expire = time.Now().Add(c.ttl)
		}
		return
	}
	if c.ll.Len() >= c.capacity {
		c.evictOldest()
	}
	ent := &entry{key: key, value: data}
	if c.ttl > 0 {
		ent.expire = time.Now().Add(c.ttl)
	}
	c.items[key] = c.ll.PushFront(ent)
}

// Delete removes a key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.items[key]; ok {
		c.removeElement(ele)
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.ll = list.New()
}

func (c *Cache) evictOldest() {
	if ele := c.ll.Back(); ele != nil {
		c.removeElement(ele)
		atomic.AddInt64(&c.stats.Evictions, 1)
	}
}

func (c *Cache) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.items, ele.Value.(*entry).key)
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      atomic.LoadInt64(&c.stats.Hits),
		Misses:    atomic.LoadInt64(&c.stats.Misses),
		Size:      c.ll.Len(),
		Capacity:  c.capacity,
		Evictions: atomic.LoadInt64(&c.stats.Evictions),
		Expired:   atomic.LoadInt64(&c.stats.Expired),
	}
}

// Size returns the current number of entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ll.Len()
}

func (c *Cache) cleanupExpired(ctx context.Context, interval time.Duration) {
	if interval < time.Minute {
		interval = time.Minute
	} else {
		interval /= 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(c.cleanupDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanupOnce()
		}
	}
}

func (c *Cache) cleanupOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return
	}
	now := time.Now()
	var expired []*list.Element
	for _, ele := range c.items {
		if now.After(ele.Value.(*entry).expire) {
			expired = append(expired, ele)
		}
	}
	for _, ele := range expired {
		c.removeElement(ele)
		atomic.AddInt64(&c.stats.Expired, 1)
	}
}

// Close stops the background cleanup goroutine and waits for it to finish.
// It is safe to call Close multiple times, including concurrently.
func (c *Cache) Close() error {
	// Claim the stop handle under the lock, but cancel and wait outside it:
	// the cleanup goroutine takes c.mu itself.
	c.mu.Lock()
	stop := c.cleanupStop
	done := c.cleanupDone
	c.cleanupStop = nil
	c.cleanupDone = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
		if done != nil {
			<-done
		}
	}
	return nil
}
