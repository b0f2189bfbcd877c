package knowledge

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const cacheKey = "knowledge"

// Cache holds the last loaded knowledge text until its TTL runs out.
type Cache struct {
	store *gocache.Cache
	ttl   time.Duration
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func (c *Cache) Get() (string, bool) {
	v, ok := c.store.Get(cacheKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores value. Empty values are never cached.
func (c *Cache) Set(value string) {
	if value == "" {
		return
	}
	c.store.Set(cacheKey, value, c.ttl)
}

func (c *Cache) Invalidate() {
	c.store.Delete(cacheKey)
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}
