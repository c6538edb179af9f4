package scripture

import (
	"context"
	"fmt"
	"time"

	"github.com/FocuswithJustin/SacredPsalms/internal/cache"
)

// DefaultCacheTTL is how long a fetched chapter is reused.
const DefaultCacheTTL = 24 * time.Hour

// Cached memoizes successful fetches per translation and psalm. Failures are
// never cached.
type Cached struct {
	next  Provider
	cache *cache.TTLCache[string, Scripture]
}

// NewCached wraps next with a cache of the given TTL.
func NewCached(next Provider, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: cache.New[string, Scripture](ttl),
	}
}

func cacheKey(n int, t Translation) string {
	return fmt.Sprintf("%s:%d", t, n)
}

// FetchByNumber implements Provider.
func (c *Cached) FetchByNumber(ctx context.Context, n int, t Translation) (Scripture, error) {
	key := cacheKey(n, t)
	if s, ok := c.cache.Get(key); ok {
		return s, nil
	}
	s, err := c.next.FetchByNumber(ctx, n, t)
	if err != nil {
		return Scripture{}, err
	}
	c.cache.Set(key, s)
	return s, nil
}

// FetchRandom implements Provider.
func (c *Cached) FetchRandom(ctx context.Context, t Translation) (Scripture, error) {
	return c.FetchByNumber(ctx, RandomPsalm(), t)
}

// Purge drops expired chapters.
func (c *Cached) Purge() int {
	return c.cache.Purge()
}
