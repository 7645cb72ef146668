package buckets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

// Cached memoizes bucket lists per endpoint and credential pair.
type Cached struct {
	next  Lister
	cache *expirable.LRU[string, []string]
}

func NewCached(next Lister, size int, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

func (c *Cached) ListBuckets(ctx context.Context, creds types.Credentials) ([]string, error) {
	key := cacheKey(creds)
	if names, ok := c.cache.Get(key); ok {
		log.Debug().Str("endpoint", creds.Endpoint).Msg("bucket list cache hit")
		return append([]string(nil), names...), nil
	}

	names, err := c.next.ListBuckets(ctx, creds)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append([]string(nil), names...))
	return names, nil
}

// Invalidate drops the cached list for creds.
func (c *Cached) Invalidate(creds types.Credentials) {
	c.cache.Remove(cacheKey(creds))
}

// cacheKey never contains the secret itself.
func cacheKey(creds types.Credentials) string {
	sum := sha256.Sum256([]byte(creds.Endpoint + "\x00" + creds.AccessKey + "\x00" + creds.SecretKey))
	return hex.EncodeToString(sum[:])
}
