package embedding

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// EmbeddingCache is an LRU cache for embeddings keyed by image digest.
type EmbeddingCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// ImageKey returns the cache key for image bytes.
func ImageKey(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// CachedClient answers repeated images from an LRU cache. Errors are not cached.
type CachedClient struct {
	next  Client
	cache *EmbeddingCache
}

// NewCachedClient wraps next with a cache of the given capacity.
func NewCachedClient(next Client, capacity int) *CachedClient {
	return &CachedClient{next: next, cache: NewEmbeddingCache(capacity)}
}

// Embed returns a copy of the cached vector or calls the wrapped client.
func (c *CachedClient) Embed(ctx context.Context, image []byte, filename string) ([]float32, error) {
	if len(image) == 0 {
		return c.next.Embed(ctx, image, filename)
	}
	key := ImageKey(image)
	if v, ok := c.cache.Get(key); ok {
		return copyVector(v), nil
	}
	v, err := c.next.Embed(ctx, image, filename)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, copyVector(v))
	return v, nil
}

// Unwrap returns the wrapped client.
func (c *CachedClient) Unwrap() Client {
	return c.next
}

// Close closes the wrapped client.
func (c *CachedClient) Close() error {
	return c.next.Close()
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
