package embedbackend

import (
	"container/list"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache is a two-tier embedding cache: an in-memory LRU in front of an
// on-disk msgpack store, with an optional shared Redis tier consulted
// before falling back to disk so multiple Recall instances share hits.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[string]*list.Element
	dir      string
	redis    redis.UniversalClient
	redisTTL time.Duration
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewCache builds a Cache backed by dir for on-disk persistence; dir may be
// empty to disable disk persistence (memory-only).
func NewCache(dir string, capacity int, rdb redis.UniversalClient, redisTTL time.Duration) *Cache {
	if dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
		dir:      dir,
		redis:    rdb,
		redisTTL: redisTTL,
	}
}

// Get looks up a cached embedding, checking memory, then Redis, then disk.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool) {
	c.mu.Lock()
	if el, ok := c.index[key]; ok {
		c.ll.MoveToFront(el)
		v := el.Value.(*cacheEntry).value
		c.mu.Unlock()
		return v, true
	}
	c.mu.Unlock()

	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, redisKey(key)).Bytes(); err == nil {
			var v []float32
			if err := msgpack.Unmarshal(raw, &v); err == nil {
				c.putMemory(key, v)
				return v, true
			}
		}
	}

	if c.dir != "" {
		if raw, err := os.ReadFile(filepath.Join(c.dir, key+".bin")); err == nil {
			var v []float32
			if err := msgpack.Unmarshal(raw, &v); err == nil {
				c.putMemory(key, v)
				return v, true
			}
		}
	}

	return nil, false
}

// Put stores an embedding in every configured tier.
func (c *Cache) Put(ctx context.Context, key string, value []float32) {
	c.putMemory(key, value)

	raw, err := msgpack.Marshal(value)
	if err != nil {
		return
	}
	if c.redis != nil {
		c.redis.Set(ctx, redisKey(key), raw, c.redisTTL)
	}
	if c.dir != "" {
		_ = os.WriteFile(filepath.Join(c.dir, key+".bin"), raw, 0o644)
	}
}

func (c *Cache) putMemory(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, value: value})
	c.index[key] = el
	if c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*cacheEntry).key)
		}
	}
}

func redisKey(key string) string { return "recall:embed:" + key }
