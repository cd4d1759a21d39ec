// Package platform provides the hosting capabilities of a standalone lfspages server.
package platform

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/wzshiming/lfspages/internal/utils"
	"github.com/wzshiming/lfspages/pkg/cache"
	"github.com/wzshiming/lfspages/pkg/lfs"
)

var errNoBucket = errors.New("no bucket configured")

// Bucket is a content addressable object store keyed by oid.
type Bucket interface {
	Get(ctx context.Context, oid string, opts lfs.GetOptions) (*lfs.Object, error)
	Head(ctx context.Context, oid string) (*lfs.Object, error)
}

// Local runs deferred tasks in-process and keeps responses in an optional shared cache.
type Local struct {
	cache      cache.Cache
	bucket     Bucket
	httpClient *http.Client
	cacheLimit int64

	tasks conc.WaitGroup
}

type Option func(*Local)

// WithCache sets the shared response cache.
func WithCache(c cache.Cache) Option {
	return func(l *Local) {
		l.cache = c
	}
}

// WithBucket sets the object store read by the bucket resolver.
func WithBucket(b Bucket) Option {
	return func(l *Local) {
		l.bucket = b
	}
}

// WithHTTPClient sets the client used for outbound requests.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Local) {
		l.httpClient = c
	}
}

// WithCacheLimit sets the largest fetched body kept in the cache.
func WithCacheLimit(limit int64) Option {
	return func(l *Local) {
		l.cacheLimit = limit
	}
}

// NewLocal creates a new Local with the given options.
func NewLocal(opts ...Option) *Local {
	l := &Local{
		httpClient: utils.HTTPClient,
		cacheLimit: 64 << 20,
	}

	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) CacheMatch(ctx context.Context, key string) (*cache.Entry, error) {
	if l.cache == nil {
		return nil, cache.ErrNotFound
	}
	return l.cache.Get(ctx, key)
}

func (l *Local) CachePut(ctx context.Context, key string, entry *cache.Entry) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Put(ctx, key, entry)
}

func (l *Local) HasBucket() bool {
	return l.bucket != nil
}

func (l *Local) BucketGet(ctx context.Context, oid string, opts lfs.GetOptions) (*lfs.Object, error) {
	if l.bucket == nil {
		return nil, errNoBucket
	}
	return l.bucket.Get(ctx, oid, opts)
}

func (l *Local) BucketHead(ctx context.Context, oid string) (*lfs.Object, error) {
	if l.bucket == nil {
		return nil, errNoBucket
	}
	return l.bucket.Head(ctx, oid)
}

// WaitUntil runs task in the background. Wait blocks until it is done.
func (l *Local) WaitUntil(task func(ctx context.Context)) {
	l.tasks.Go(func() {
		task(context.Background())
	})
}

// Wait blocks until every task passed to WaitUntil has returned.
func (l *Local) Wait() {
	if r := l.tasks.WaitAndRecover(); r != nil {
		log.Printf("Deferred task panicked: %v", r.Value)
	}
}

// Fetch sends req. Successful GET responses are cached for cacheTTL
// and identical requests are answered from the cache until then.
func (l *Local) Fetch(req *http.Request, cacheTTL time.Duration) (*http.Response, error) {
	if cacheTTL <= 0 || l.cache == nil || req.Method != http.MethodGet {
		return l.httpClient.Do(req)
	}

	ctx := req.Context()
	key := cache.Key(req.URL, req.Method, req.Header)
	entry, err := l.cache.Get(ctx, key)
	if err == nil {
		return entry.Response(req), nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		log.Printf("Failed to look up %s in cache: %v", req.URL.Redacted(), err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	header := resp.Header.Clone()
	resp.Body = cache.TeeBody(resp.Body, l.cacheLimit, func(body []byte) {
		entry := &cache.Entry{
			Status:  resp.StatusCode,
			Header:  header,
			Body:    body,
			Expires: time.Now().Add(cacheTTL),
		}
		l.WaitUntil(func(ctx context.Context) {
			if err := l.cache.Put(ctx, key, entry); err != nil {
				log.Printf("Failed to store %s in cache: %v", req.URL.Redacted(), err)
			}
		})
	})
	return resp, nil
}
