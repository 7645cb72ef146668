package buckets

import (
	"context"
	"fmt"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/types"
)

const (
	DefaultCacheTTL = 30 * time.Second
	DefaultCacheMax = 32
)

// Lister discovers the buckets visible with a set of credentials.
type Lister interface {
	ListBuckets(ctx context.Context, creds types.Credentials) ([]string, error)
}

// NewLister builds the configured lister. rcloneLister is used for the
// "rclone" strategy; a positive CacheTTL wraps the result in a cache.
func NewLister(cfg types.BucketsConfig, rcloneLister Lister) (Lister, error) {
	var lister Lister
	switch cfg.Lister {
	case "", types.ListerRclone:
		if rcloneLister == nil {
			return nil, fmt.Errorf("rclone lister not available")
		}
		lister = rcloneLister
	case types.ListerS3:
		lister = NewS3Lister(cfg.Region)
	default:
		return nil, &types.ValidationError{Field: "buckets.lister", Reason: fmt.Sprintf("unknown lister %q", cfg.Lister)}
	}

	if cfg.CacheTTL <= 0 {
		return lister, nil
	}
	size := cfg.CacheMax
	if size <= 0 {
		size = DefaultCacheMax
	}
	return NewCached(lister, size, cfg.CacheTTL), nil
}
