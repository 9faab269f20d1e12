package cache

import (
	"sync"
	"time"
)

type entry struct {
	value    interface{}
	expiry   time.Time
	hitCount int
}

// 进程内缓存 固定容量 满时淘汰命中次数最少的条目
// 过期条目在 Get 时惰性删除 另有后台定时清扫
type Cache struct {
	mu         sync.Mutex
	maxSize    int
	defaultTTL time.Duration
	entries    map[string]*entry

	sweepDone chan struct{}
	closeOnce sync.Once
}

// sweepInterval <= 0 时不启动后台清扫
func New(maxSize int, defaultTTL, sweepInterval time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 128
	}
	c := &Cache{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*entry),
		sweepDone:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

func (c *Cache) Set(key string, value interface{}) {
	c.SetTTL(key, value, c.defaultTTL)
}

// ttl <= 0 表示永不过期
func (c *Cache) SetTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxSize {
		c.evictColdest()
	}

	var expiry time.Time
	if ttl > 0 {
		expiry = time.Now().Add(ttl)
	}
	c.entries[key] = &entry{value: value, expiry: expiry}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.entries, key)
		return nil, false
	}
	e.hitCount++
	return e.value, true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.sweepDone) })
}

// 调用方需持有 c.mu
func (c *Cache) evictColdest() {
	var coldest string
	minHits := -1
	for k, e := range c.entries {
		if minHits < 0 || e.hitCount < minHits {
			minHits = e.hitCount
			coldest = k
		}
	}
	if minHits >= 0 {
		delete(c.entries, coldest)
	}
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.sweepDone:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiry.IsZero() && now.After(e.expiry)
}
