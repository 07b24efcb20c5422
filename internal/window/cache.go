package window

import (
	"container/list"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/torvik-dev/parley/internal/session"
)

// CacheKey identifies one assembled prompt. UpdatedAt and the content hash
// together make stale entries unreachable after any session mutation.
type CacheKey struct {
	SessionID   string
	Strategy    string
	ContentHash uint64
	UpdatedAt   int64
}

// Key derives the cache key for a session/strategy pair.
func Key(s session.Session, strategy string) CacheKey {
	h := fnv.New64a()
	for _, m := range s.Messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	h.Write([]byte(strconv.Itoa(len(s.Messages))))
	return CacheKey{
		SessionID:   s.ID,
		Strategy:    strategy,
		ContentHash: h.Sum64(),
		UpdatedAt:   s.UpdatedAt.UnixNano(),
	}
}

// Cache holds assembled prompts, evicting least-recently-used entries once
// capacity is exceeded. Entries are read-only snapshots.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recent
	entries  map[CacheKey]*list.Element
}

type cacheEntry struct {
	key CacheKey
	val Assembly
}

// NewCache returns a cache bounded to capacity entries.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[CacheKey]*list.Element),
	}
}

// Get returns the cached assembly for key, marking it most recently used.
func (c *Cache) Get(key CacheKey) (Assembly, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return Assembly{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).val, true
}

// Put inserts an assembly, evicting the least recently used entry when the
// cache is full. Re-inserting an existing key refreshes its recency only;
// cached assemblies are never mutated in place.
func (c *Cache) Put(key CacheKey, val Assembly) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, val: val})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len reports the number of cached assemblies.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
