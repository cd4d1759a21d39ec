// Package cache stores HTTP responses in a shared cache keyed by request identity.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrNotFound = errors.New("cache entry not found")

// Cache is a shared response cache. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry *Entry) error
}

// Entry is a cached response.
type Entry struct {
	Status  int
	Header  http.Header
	Body    []byte
	Expires time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.Expires.IsZero() && !now.Before(e.Expires)
}

// Response converts the entry into a response for req.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// VaryHeaders are the request headers that select between cache entries of one URL.
var VaryHeaders = []string{
	"Range",
	"If-Match",
	"If-None-Match",
	"If-Modified-Since",
	"If-Unmodified-Since",
}

// Key derives the cache key of a request for u.
func Key(u *url.URL, method string, header http.Header) string {
	h := sha256.New()
	_, _ = io.WriteString(h, method)
	_, _ = io.WriteString(h, " ")
	_, _ = io.WriteString(h, u.String())
	for _, name := range VaryHeaders {
		values := header.Values(name)
		if len(values) == 0 {
			continue
		}
		_, _ = io.WriteString(h, "\n"+name+": "+strings.Join(values, ", "))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TeeBody returns a reader that passes body through and calls done with
// everything read once body reaches EOF. Bodies larger than limit are not
// reported.
func TeeBody(body io.ReadCloser, limit int64, done func(data []byte)) io.ReadCloser {
	return &teeBody{
		body:  body,
		limit: limit,
		done:  done,
	}
}

type teeBody struct {
	body     io.ReadCloser
	buf      bytes.Buffer
	limit    int64
	done     func(data []byte)
	overflow bool
	finished bool
}

func (t *teeBody) Read(p []byte) (int, error) {
	n, err := t.body.Read(p)
	if n > 0 && !t.overflow {
		if int64(t.buf.Len()+n) > t.limit {
			t.overflow = true
			t.buf = bytes.Buffer{}
		} else {
			t.buf.Write(p[:n])
		}
	}
	if err == io.EOF && !t.overflow && !t.finished {
		t.finished = true
		t.done(t.buf.Bytes())
	}
	return n, err
}

func (t *teeBody) Close() error {
	return t.body.Close()
}
