package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/wzshiming/lfspages/pkg/cache"
	"github.com/wzshiming/lfspages/pkg/lfs"
)

// Objects are addressed by content, so whatever the bucket metadata says
// they never change.
const immutableCacheControl = "immutable, max-age=31536000"

// fromBucket serves the object straight from the bucket, keeping a copy in the cache.
func (h *Handler) fromBucket(r *http.Request, ptr *lfs.Pointer) (*http.Response, error) {
	ctx := r.Context()

	objectURL, err := lfs.ExtendPath(h.bucketURL, ptr.Oid)
	if err != nil {
		return nil, fmt.Errorf("bucket: %w", err)
	}
	key := cache.Key(objectURL, r.Method, r.Header)

	entry, err := h.platform.CacheMatch(ctx, key)
	if err == nil {
		return entry.Response(r), nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		log.Printf("Failed to look up %s in cache: %v", objectURL.Redacted(), err)
	}

	var obj *lfs.Object
	if r.Method == http.MethodHead {
		obj, err = h.platform.BucketHead(ctx, ptr.Oid)
	} else {
		obj, err = h.platform.BucketGet(ctx, ptr.Oid, lfs.GetOptions{
			Range: r.Header.Get("Range"),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from bucket: %w", ptr.Oid, err)
	}

	resp := objectResponse(r, obj)

	stored := resp.Header.Clone()
	stored.Set("Cache-Control", immutableCacheControl)
	put := func(body []byte) {
		entry := &cache.Entry{
			Status: resp.StatusCode,
			Header: stored,
			Body:   body,
		}
		h.platform.WaitUntil(func(ctx context.Context) {
			if err := h.platform.CachePut(ctx, key, entry); err != nil {
				log.Printf("Failed to store %s in cache: %v", objectURL.Redacted(), err)
			}
		})
	}

	if obj.Body == nil {
		put(nil)
	} else {
		resp.Body = cache.TeeBody(obj.Body, h.cacheLimit, put)
	}
	return resp, nil
}

func objectResponse(r *http.Request, obj *lfs.Object) *http.Response {
	header := http.Header{}
	obj.WriteHTTPMetadata(header)
	if etag := obj.HTTPEtag(); etag != "" {
		header.Set("ETag", etag)
	}
	header.Set("Content-Length", strconv.FormatInt(obj.Size, 10))

	status := http.StatusOK
	if obj.Range != "" {
		header.Set("Content-Range", obj.Range)
		status = http.StatusPartialContent
	}

	resp := &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          http.NoBody,
		ContentLength: obj.Size,
		Request:       r,
	}
	if obj.Body != nil {
		resp.Body = obj.Body
	}
	return resp
}
