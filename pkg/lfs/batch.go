package lfs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MediaType is the media type of LFS batch API documents.
const MediaType = "application/vnd.git-lfs+json"

var (
	ErrInvalidURL           = errors.New("invalid url")
	ErrBatchStatus          = errors.New("batch request failed")
	ErrBatchMediaType       = errors.New("unexpected batch response media type")
	ErrBatchTransfer        = errors.New("unsupported transfer adapter")
	ErrBatchNoObject        = errors.New("batch response has no objects")
	ErrBatchOidMismatch     = errors.New("batch response object does not match request")
	ErrBatchObjectError     = errors.New("batch response object error")
	ErrBatchUnauthenticated = errors.New("batch response object is not authenticated")
	ErrBatchNoAction        = errors.New("batch response has no download action")
)

// BatchError describes why a batch negotiation did not produce a download action.
type BatchError struct {
	URL    string
	Err    error
	Detail string
}

func (e *BatchError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.URL, e.Err, e.Detail)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Doer sends HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client negotiates downloads with a remote Git LFS server.
type Client struct {
	httpClient Doer
}

// NewClient creates a new Client sending batch requests through httpClient.
func NewClient(httpClient Doer) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
	}
}

// BatchRequest represents a request to the LFS batch API
type BatchRequest struct {
	Operation string        `json:"operation"`
	Transfers []string      `json:"transfers,omitempty"`
	Objects   []BatchObject `json:"objects"`
	HashAlgo  string        `json:"hash_algo,omitempty"`
}

// BatchObject represents an object in a batch request
type BatchObject struct {
	Oid  string `json:"oid"`
	Size int64  `json:"size"`
}

// BatchResponse represents a response from the LFS batch API
type BatchResponse struct {
	Transfer string                `json:"transfer,omitempty"`
	Objects  []BatchResponseObject `json:"objects"`
	HashAlgo string                `json:"hash_algo,omitempty"`
}

// BatchResponseObject represents an object in a batch response
type BatchResponseObject struct {
	Oid           string            `json:"oid"`
	Size          int64             `json:"size"`
	Authenticated bool              `json:"authenticated,omitempty"`
	Actions       map[string]Action `json:"actions,omitempty"`
	Error         *ObjectError      `json:"error,omitempty"`
}

// Action represents an action in a batch response
type Action struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header,omitempty"`
	ExpiresIn int               `json:"expires_in,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// ObjectError represents an error for an object in a batch response
type ObjectError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ExtendPath returns a copy of rawURL with elem appended to its path,
// replacing a single trailing slash.
// The error never repeats rawURL, which may carry credentials.
func ExtendPath(rawURL string, elem string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrInvalidURL
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + elem
	u.RawPath = ""
	return u, nil
}

// Download asks the LFS server at lfsURL for the download action of p.
func (c *Client) Download(ctx context.Context, lfsURL string, p Pointer) (*Action, error) {
	batchURL, err := ExtendPath(lfsURL, "objects/batch")
	if err != nil {
		return nil, fmt.Errorf("LFS server: %w", err)
	}

	var authorization string
	if batchURL.User != nil {
		password, _ := batchURL.User.Password()
		creds := batchURL.User.Username() + ":" + password
		authorization = "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
		batchURL.User = nil
	}

	reqBody := BatchRequest{
		Operation: "download",
		Transfers: []string{"basic"},
		Objects: []BatchObject{
			{Oid: p.Oid, Size: p.Size},
		},
		HashAlgo: p.HashAlgo,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	target := batchURL.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}

	req.Header.Set("Content-Type", MediaType)
	req.Header.Set("Accept", MediaType)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute batch request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &BatchError{URL: target, Err: ErrBatchStatus, Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, body)}
	}

	contentType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err != nil || mt != MediaType {
		return nil, &BatchError{URL: target, Err: ErrBatchMediaType, Detail: contentType}
	}

	var batchResp BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batchResp); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}

	return batchResp.downloadAction(target, p)
}

func (b *BatchResponse) downloadAction(target string, p Pointer) (*Action, error) {
	if b.Transfer != "" && b.Transfer != "basic" {
		return nil, &BatchError{URL: target, Err: ErrBatchTransfer, Detail: b.Transfer}
	}
	if len(b.Objects) == 0 {
		return nil, &BatchError{URL: target, Err: ErrBatchNoObject}
	}

	obj := b.Objects[0]
	if obj.Oid != p.Oid {
		return nil, &BatchError{URL: target, Err: ErrBatchOidMismatch, Detail: obj.Oid}
	}
	if obj.Error != nil {
		return nil, &BatchError{URL: target, Err: ErrBatchObjectError, Detail: fmt.Sprintf("%d %s", obj.Error.Code, obj.Error.Message)}
	}
	if !obj.Authenticated {
		return nil, &BatchError{URL: target, Err: ErrBatchUnauthenticated}
	}

	action, ok := obj.Actions["download"]
	if !ok || action.Href == "" {
		return nil, &BatchError{URL: target, Err: ErrBatchNoAction}
	}
	return &action, nil
}

// Request builds the request fetching the action's object with the given method.
// Headers in header take precedence over the action's own headers.
func (a Action) Request(ctx context.Context, method string, header http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.Href, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range a.Header {
		req.Header.Set(key, value)
	}
	for key, values := range header {
		req.Header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}

	return req, nil
}
