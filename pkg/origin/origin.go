// Package origin provides the static sites an lfspages gateway can sit in front of.
package origin

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/wzshiming/lfspages/internal/utils"
)

// Upstream is a static site served over HTTP.
type Upstream struct {
	base       *url.URL
	httpClient *http.Client
}

// NewUpstream creates an origin forwarding requests below baseURL.
// Redirects are passed back to the caller instead of being followed.
func NewUpstream(baseURL string, httpClient *http.Client) (*Upstream, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid origin url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid origin url %q: missing scheme or host", baseURL)
	}
	if httpClient == nil {
		httpClient = utils.HTTPClient
	}

	c := *httpClient
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Upstream{
		base:       base,
		httpClient: &c,
	}, nil
}

func (u *Upstream) Fetch(r *http.Request) (*http.Response, error) {
	target := *u.base
	target.Path = strings.TrimSuffix(u.base.Path, "/") + cleanPath(r.URL.Path)
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header = utils.EndToEndHeader(r.Header)
	return u.httpClient.Do(req)
}

// cleanPath keeps p below the base path of the upstream.
func cleanPath(p string) string {
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// Dir serves the static site stored in root.
func Dir(root string) *Handler {
	return FromHandler(http.FileServer(http.Dir(root)))
}

// Handler adapts an http.Handler into an origin, streaming its output.
type Handler struct {
	handler http.Handler
}

// FromHandler creates an origin served by h.
func FromHandler(h http.Handler) *Handler {
	return &Handler{handler: h}
}

func (o *Handler) Fetch(r *http.Request) (*http.Response, error) {
	pr, pw := io.Pipe()
	w := &pipeWriter{
		header: http.Header{},
		pw:     pw,
		ready:  make(chan struct{}),
	}

	go func() {
		defer func() {
			if p := recover(); p != nil {
				w.fail(fmt.Errorf("origin handler panic: %v", p))
				return
			}
			w.WriteHeader(http.StatusOK)
			_ = pw.Close()
		}()
		o.handler.ServeHTTP(w, r)
	}()

	<-w.ready
	if w.err != nil {
		return nil, w.err
	}

	contentLength := int64(-1)
	if cl := w.snapshot.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			contentLength = n
		}
	}

	return &http.Response{
		Status:        strconv.Itoa(w.status) + " " + http.StatusText(w.status),
		StatusCode:    w.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        w.snapshot,
		Body:          pr,
		ContentLength: contentLength,
		Request:       r,
	}, nil
}

// pipeWriter is an http.ResponseWriter whose body is read from a pipe.
type pipeWriter struct {
	header   http.Header
	snapshot http.Header
	status   int
	err      error

	pw    *io.PipeWriter
	ready chan struct{}
	once  sync.Once
}

func (w *pipeWriter) Header() http.Header {
	return w.header
}

func (w *pipeWriter) WriteHeader(code int) {
	w.once.Do(func() {
		w.status = code
		w.snapshot = w.header.Clone()
		close(w.ready)
	})
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.pw.Write(p)
}

func (w *pipeWriter) fail(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.ready)
	})
	_ = w.pw.CloseWithError(err)
}
