package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Loader 缓存未命中时的加载函数
type Loader[V any] func(ctx context.Context) (V, error)

// Cache 带过期时间的 LRU，以 int64 ID 为键，并发未命中合并为一次加载
type Cache[V any] struct {
	lru   *lru.LRU[int64, V]
	group singleflight.Group

	mu    sync.Mutex
	epoch uint64
	gen   map[int64]uint64 // 失效代数，加载期间被失效的结果不写回
}

func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = 1024
	}
	return &Cache[V]{
		lru: lru.NewLRU[int64, V](size, nil, ttl),
		gen: make(map[int64]uint64),
	}
}

// Get 返回缓存值，hit 表示是否直接命中
func (c *Cache[V]) Get(ctx context.Context, id int64, load Loader[V]) (v V, hit bool, err error) {
	if v, ok := c.lru.Get(id); ok {
		return v, true, nil
	}

	startGen := c.generation(id)
	res, err, _ := c.group.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.generation(id) == startGen {
			c.lru.Add(id, loaded)
		}
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

// Invalidate 移除单个键
func (c *Cache[V]) Invalidate(id int64) {
	c.mu.Lock()
	c.gen[id]++
	c.mu.Unlock()
	c.lru.Remove(id)
	c.group.Forget(strconv.FormatInt(id, 10))
}

func (c *Cache[V]) Purge() {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
	c.lru.Purge()
}

func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

func (c *Cache[V]) generation(id int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch + c.gen[id]
}
