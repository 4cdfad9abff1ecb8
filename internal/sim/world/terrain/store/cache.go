// Package store memoizes generated chunks with bounded memory.
package store

import (
	"container/list"
	"sync"
	"time"

	"civforge.ai/internal/sim/world/terrain/gen"
)

const DefaultCapacity = 100

// Source produces chunks on a cache miss. *gen.Generator satisfies it.
type Source interface {
	GenerateChunk(cx, cy int, lod gen.LOD) (*gen.ChunkData, error)
}

type Key struct {
	CX  int     `json:"cx"`
	CY  int     `json:"cy"`
	LOD gen.LOD `json:"lod"`
}

type entry struct {
	key        Key
	data       *gen.ChunkData
	lastAccess time.Time
}

type Stats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache is an LRU over generated chunks. Hits and misses return identical
// data; the cache never affects results, only cost. Returned chunks are shared
// and must not be modified.
type Cache struct {
	src      Source
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	entries map[Key]*list.Element
	lru     *list.List // front = most recently accessed

	hits, misses, evictions uint64
}

func NewCache(src Source, capacity int, now func() time.Time) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		src:      src,
		capacity: capacity,
		now:      now,
		entries:  map[Key]*list.Element{},
		lru:      list.New(),
	}
}

// Get returns the cached chunk or generates it. Generation runs outside the
// lock; two goroutines missing on the same key may both generate, and the
// later insert wins. Errors are returned but never cached.
func (c *Cache) Get(cx, cy int, lod gen.LOD) (*gen.ChunkData, error) {
	k := Key{CX: cx, CY: cy, LOD: lod}

	c.mu.Lock()
	if el, ok := c.entries[k]; ok {
		e := el.Value.(*entry)
		e.lastAccess = c.now()
		c.lru.MoveToFront(el)
		c.hits++
		c.mu.Unlock()
		return e.data, nil
	}
	c.misses++
	c.mu.Unlock()

	data, err := c.src.GenerateChunk(cx, cy, lod)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[k]; ok {
		e := el.Value.(*entry)
		e.data = data
		e.lastAccess = c.now()
		c.lru.MoveToFront(el)
		return data, nil
	}
	for c.lru.Len() >= c.capacity {
		c.evictOldest()
	}
	c.entries[k] = c.lru.PushFront(&entry{key: k, data: data, lastAccess: c.now()})
	return data, nil
}

func (c *Cache) evictOldest() {
	el := c.lru.Back()
	if el == nil {
		return
	}
	c.lru.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
	c.evictions++
}

// Contains reports whether k is cached without touching its recency.
func (c *Cache) Contains(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[k]
	return ok
}

// Keys lists cached keys from most to least recently accessed.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Key, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).key)
	}
	return out
}

// LastAccess returns the access time recorded for k.
func (c *Cache) LastAccess(k Key) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[k]
	if !ok {
		return time.Time{}, false
	}
	return el.Value.(*entry).lastAccess, true
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[Key]*list.Element{}
	c.lru.Init()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.lru.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
