package cache

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultShards   = 16
	defaultCapacity = 4096
)

// Sharded is a bounded string-keyed cache split across independently locked
// shards. Each shard evicts its oldest entry once full.
type Sharded[V any] struct {
	shards   []shard[V]
	perShard int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type shard[V any] struct {
	mx    sync.RWMutex
	items map[string]V
	order []string
	head  int
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
	Shards    int    `json:"shards"`
}

// NewSharded creates a cache holding up to capacity entries. Non-positive
// arguments fall back to defaults.
func NewSharded[V any](shardCount, capacity int) *Sharded[V] {
	if shardCount <= 0 {
		shardCount = defaultShards
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	perShard := max(1, capacity/shardCount)

	c := &Sharded[V]{
		shards:   make([]shard[V], shardCount),
		perShard: perShard,
	}
	for i := range c.shards {
		c.shards[i].items = make(map[string]V, perShard)
		c.shards[i].order = make([]string, 0, perShard)
	}
	return c
}

func (c *Sharded[V]) shardFor(key string) *shard[V] {
	return &c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

func (c *Sharded[V]) Get(key string) (V, bool) {
	sh := c.shardFor(key)
	sh.mx.RLock()
	v, ok := sh.items[key]
	sh.mx.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *Sharded[V]) Set(key string, value V) {
	sh := c.shardFor(key)
	sh.mx.Lock()
	defer sh.mx.Unlock()

	if _, exists := sh.items[key]; exists {
		sh.items[key] = value
		return
	}
	if len(sh.order) < c.perShard {
		sh.order = append(sh.order, key)
	} else {
		delete(sh.items, sh.order[sh.head])
		sh.order[sh.head] = key
		sh.head = (sh.head + 1) % c.perShard
		c.evictions.Add(1)
	}
	sh.items[key] = value
}

// GetOrCompute returns the cached value for key or stores the result of
// compute. Concurrent misses on the same key may compute more than once.
func (c *Sharded[V]) GetOrCompute(key string, compute func() V) (V, bool) {
	if v, ok := c.Get(key); ok {
		return v, true
	}
	v := compute()
	c.Set(key, v)
	return v, false
}

func (c *Sharded[V]) Len() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mx.RLock()
		n += len(sh.items)
		sh.mx.RUnlock()
	}
	return n
}

// Purge drops every entry. Counters are kept.
func (c *Sharded[V]) Purge() {
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mx.Lock()
		clear(sh.items)
		sh.order = sh.order[:0]
		sh.head = 0
		sh.mx.Unlock()
	}
}

func (c *Sharded[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.Len(),
		Shards:    len(c.shards),
	}
}
