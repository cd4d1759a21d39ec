// Package gateway replaces Git LFS pointer files served by a static site
// with the objects they point to.
package gateway

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wzshiming/lfspages/internal/utils"
	"github.com/wzshiming/lfspages/pkg/lfs"
)

var ErrNotConfigured = errors.New("no LFS bucket or LFS server configured")

const (
	allowMethods = "GET, HEAD, OPTIONS"

	// DefaultConfigPath is where the LFS configuration lives in a static site.
	DefaultConfigPath = "/.lfsconfig"

	// DefaultKeepHeaders names the origin headers that survive substitution.
	DefaultKeepHeaders = "Cache-Control"

	defaultCacheLimit = 64 << 20
)

// Handler serves a static site with its Git LFS pointers replaced by objects.
type Handler struct {
	platform Platform
	origin   Origin

	root *mux.Router

	client *lfs.Client

	lfsURL    string
	hasLFSURL bool

	configPath  string
	bucketURL   string
	keepHeaders []string
	cacheLimit  int64
}

type Option func(*Handler)

// WithPlatform sets the hosting capabilities used to resolve objects.
func WithPlatform(platform Platform) Option {
	return func(h *Handler) {
		h.platform = platform
	}
}

// WithOrigin sets the static site whose responses are inspected.
func WithOrigin(origin Origin) Option {
	return func(h *Handler) {
		h.origin = origin
	}
}

// WithLFSConfig sets the contents of the site's .lfsconfig.
func WithLFSConfig(config string) Option {
	return func(h *Handler) {
		h.lfsURL, h.hasLFSURL = lfs.URLFromConfig(config)
	}
}

// WithConfigPath sets the public path of the .lfsconfig file, which is never served.
func WithConfigPath(p string) Option {
	return func(h *Handler) {
		h.configPath = p
	}
}

// WithBucketURL sets the base URL of the bucket holding the LFS objects.
func WithBucketURL(bucketURL string) Option {
	return func(h *Handler) {
		h.bucketURL = bucketURL
	}
}

// WithKeepHeaders sets the origin headers copied onto substituted responses.
func WithKeepHeaders(names []string) Option {
	return func(h *Handler) {
		h.keepHeaders = names
	}
}

// WithCacheLimit sets the largest object body written to the cache.
func WithCacheLimit(limit int64) Option {
	return func(h *Handler) {
		h.cacheLimit = limit
	}
}

// NewHandler creates a new Handler with the given options.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		root:        mux.NewRouter(),
		configPath:  DefaultConfigPath,
		keepHeaders: ParseKeepHeaders(DefaultKeepHeaders),
		cacheLimit:  defaultCacheLimit,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.platform == nil {
		h.platform = defaultPlatform{}
	}
	h.client = lfs.NewClient(platformDoer{platform: h.platform})

	h.register()
	return h
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) register() {
	// Paths reach the origin as requested. Only the config lookup is cleaned.
	h.root.SkipClean(true)
	h.root.MatcherFunc(h.isConfigPath).HandlerFunc(h.handleConfig)
	h.root.PathPrefix("/").HandlerFunc(h.handleObject)
}

func (h *Handler) isConfigPath(r *http.Request, _ *mux.RouteMatch) bool {
	return path.Clean(r.URL.Path) == path.Clean(h.configPath)
}

// ParseKeepHeaders splits a comma separated list of header names.
func ParseKeepHeaders(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// handleConfig hides the LFS configuration, which may carry credentials.
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	responseText(w, "", http.StatusNotFound)
}

func (h *Handler) handleObject(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		w.Header().Set("Allow", allowMethods)
		w.WriteHeader(http.StatusOK)
		return
	default:
		w.Header().Set("Allow", allowMethods)
		responseText(w, "", http.StatusMethodNotAllowed)
		return
	}

	if h.origin == nil {
		responseText(w, "no origin configured", http.StatusBadGateway)
		return
	}

	// A HEAD of the pointer carries no body to inspect, so the origin
	// always gets a GET and the object's own HEAD is served instead.
	originReq := r
	if r.Method == http.MethodHead {
		originReq = r.Clone(r.Context())
		originReq.Method = http.MethodGet
	}

	resp, err := h.origin.Fetch(originReq)
	if err != nil {
		log.Printf("Failed to fetch %s from origin: %v", r.URL.Path, err)
		responseText(w, "failed to fetch from origin", http.StatusBadGateway)
		return
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		writeResponse(w, r, resp)
		return
	}

	ptr, body, err := detectPointer(resp.Body)
	resp.Body = body
	if err != nil {
		_ = resp.Body.Close()
		log.Printf("Failed to read %s from origin: %v", r.URL.Path, err)
		responseText(w, "failed to read from origin", http.StatusBadGateway)
		return
	}
	if ptr == nil {
		writeResponse(w, r, resp)
		return
	}
	_ = resp.Body.Close()

	objResp, err := h.resolve(r, ptr)
	if err != nil {
		// Errors may name signed hrefs, so the detail only goes to the log.
		log.Printf("Failed to resolve LFS object %s for %s: %v", ptr.Oid, r.URL.Path, err)
		responseText(w, "failed to resolve LFS object "+ptr.Oid, http.StatusBadGateway)
		return
	}

	copyKeepHeaders(objResp.Header, resp.Header, h.keepHeaders)
	writeResponse(w, r, objResp)
}

func (h *Handler) resolve(r *http.Request, ptr *lfs.Pointer) (*http.Response, error) {
	if h.platform.HasBucket() && h.bucketURL != "" {
		return h.fromBucket(r, ptr)
	}
	if h.hasLFSURL {
		return h.fromRemote(r, ptr)
	}
	return nil, ErrNotConfigured
}

// detectPointer reads the start of body and reports the pointer in it, if any.
// The returned body still yields every byte of the original.
func detectPointer(body io.ReadCloser) (*lfs.Pointer, io.ReadCloser, error) {
	buf := make([]byte, lfs.MaxPointerSize)
	n, err := io.ReadFull(body, buf)
	buf = buf[:n]

	restored := &prefixedBody{
		Reader: io.MultiReader(bytes.NewReader(buf), body),
		Closer: body,
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, restored, err
	}

	ptr, ok := lfs.DecodePointer(buf)
	if !ok {
		return nil, restored, nil
	}
	return ptr, restored, nil
}

type prefixedBody struct {
	io.Reader
	io.Closer
}

// copyKeepHeaders copies the named headers from src to dst.
// A name missing from src is removed from dst.
func copyKeepHeaders(dst, src http.Header, names []string) {
	for _, name := range names {
		values := src.Values(name)
		if len(values) == 0 {
			dst.Del(name)
			continue
		}
		dst[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	header := w.Header()
	for key, values := range utils.EndToEndHeader(resp.Header) {
		header[key] = values
	}
	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead || resp.Body == nil {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("Failed to write response for %s: %v", r.URL.Path, err)
	}
}

func responseText(w http.ResponseWriter, text string, sc int) {
	header := w.Header()
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	if sc >= http.StatusBadRequest {
		header.Del("Content-Length")
		header.Set("X-Content-Type-Options", "nosniff")
	}

	if sc != 0 {
		w.WriteHeader(sc)
	}

	if text == "" {
		return
	}

	_, _ = io.WriteString(w, text)
}
