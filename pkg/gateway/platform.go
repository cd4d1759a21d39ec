package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/wzshiming/lfspages/pkg/cache"
	"github.com/wzshiming/lfspages/pkg/lfs"
)

// Platform is everything the gateway needs from its hosting environment.
type Platform interface {
	// CacheMatch returns cache.ErrNotFound on a miss.
	CacheMatch(ctx context.Context, key string) (*cache.Entry, error)
	CachePut(ctx context.Context, key string, entry *cache.Entry) error

	// HasBucket reports whether BucketGet and BucketHead are usable.
	HasBucket() bool
	BucketGet(ctx context.Context, oid string, opts lfs.GetOptions) (*lfs.Object, error)
	BucketHead(ctx context.Context, oid string) (*lfs.Object, error)

	// WaitUntil runs task after the response without delaying it.
	// The platform keeps running tasks alive until they complete.
	WaitUntil(task func(ctx context.Context))

	// Fetch sends req. A positive cacheTTL allows the platform to serve
	// and keep the response in a cache for that long.
	Fetch(req *http.Request, cacheTTL time.Duration) (*http.Response, error)
}

// Origin serves the static site the gateway sits in front of.
type Origin interface {
	Fetch(r *http.Request) (*http.Response, error)
}

type defaultPlatform struct{}

func (defaultPlatform) CacheMatch(context.Context, string) (*cache.Entry, error) {
	return nil, cache.ErrNotFound
}

func (defaultPlatform) CachePut(context.Context, string, *cache.Entry) error {
	return nil
}

func (defaultPlatform) HasBucket() bool {
	return false
}

func (defaultPlatform) BucketGet(context.Context, string, lfs.GetOptions) (*lfs.Object, error) {
	return nil, ErrNotConfigured
}

func (defaultPlatform) BucketHead(context.Context, string) (*lfs.Object, error) {
	return nil, ErrNotConfigured
}

func (defaultPlatform) WaitUntil(task func(ctx context.Context)) {
	task(context.Background())
}

func (defaultPlatform) Fetch(req *http.Request, _ time.Duration) (*http.Response, error) {
	return http.DefaultClient.Do(req)
}

// platformDoer sends uncached requests through a Platform.
type platformDoer struct {
	platform Platform
}

func (d platformDoer) Do(req *http.Request) (*http.Response, error) {
	return d.platform.Fetch(req, 0)
}
