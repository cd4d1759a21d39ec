package lfs

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

var ErrObjectNotFound = errors.New("LFS object not found")

// Object is an LFS object read from a bucket.
type Object struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time

	// Header holds the HTTP metadata stored with the object,
	// such as Content-Type or Cache-Control.
	Header http.Header

	// Range is the Content-Range of Body when only part of the object was read.
	Range string

	// Body is nil for objects returned by Head.
	Body io.ReadCloser
}

// GetOptions narrows a bucket read.
type GetOptions struct {
	Range string
}

// WriteHTTPMetadata copies the object's stored metadata into h.
func (o *Object) WriteHTTPMetadata(h http.Header) {
	for key, values := range o.Header {
		h[key] = append([]string(nil), values...)
	}
	if !o.LastModified.IsZero() {
		h.Set("Last-Modified", o.LastModified.UTC().Format(http.TimeFormat))
	}
}

// HTTPEtag returns the quoted entity tag of the object.
func (o *Object) HTTPEtag() string {
	if o.ETag == "" {
		return ""
	}
	if o.ETag[0] == '"' || (len(o.ETag) > 2 && o.ETag[:2] == "W/") {
		return o.ETag
	}
	return strconv.Quote(o.ETag)
}
