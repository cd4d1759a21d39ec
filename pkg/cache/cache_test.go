package cache

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

func TestKey(t *testing.T) {
	u, _ := url.Parse("https://bucket.example.com/objects/abc")
	other, _ := url.Parse("https://bucket.example.com/objects/abd")

	base := Key(u, http.MethodGet, http.Header{})

	tests := []struct {
		name   string
		url    *url.URL
		method string
		header http.Header
		same   bool
	}{
		{
			name:   "identical",
			url:    u,
			method: http.MethodGet,
			header: http.Header{},
			same:   true,
		},
		{
			name:   "unrelated header",
			url:    u,
			method: http.MethodGet,
			header: http.Header{"Accept": {"*/*"}, "User-Agent": {"curl"}},
			same:   true,
		},
		{
			name:   "method",
			url:    u,
			method: http.MethodHead,
			header: http.Header{},
		},
		{
			name:   "url",
			url:    other,
			method: http.MethodGet,
			header: http.Header{},
		},
		{
			name:   "range",
			url:    u,
			method: http.MethodGet,
			header: http.Header{"Range": {"bytes=0-9"}},
		},
		{
			name:   "conditional",
			url:    u,
			method: http.MethodGet,
			header: http.Header{"If-None-Match": {`"abc"`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Key(tt.url, tt.method, tt.header)
			if (got == base) != tt.same {
				t.Errorf("Key() same = %v, want %v", got == base, tt.same)
			}
			if len(got) != 64 {
				t.Errorf("Key() length = %d, want 64", len(got))
			}
		})
	}
}

func TestEntryExpired(t *testing.T) {
	now := time.Now()

	if (&Entry{}).Expired(now) {
		t.Error("entry without expiry is expired")
	}
	if (&Entry{Expires: now.Add(time.Minute)}).Expired(now) {
		t.Error("future expiry is expired")
	}
	if !(&Entry{Expires: now}).Expired(now) {
		t.Error("expiry at now is not expired")
	}
}

func TestEntryResponse(t *testing.T) {
	entry := &Entry{
		Status: http.StatusPartialContent,
		Header: http.Header{"Content-Range": {"bytes 0-4/10"}},
		Body:   []byte("hello"),
	}
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)

	resp := entry.Response(req)
	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if resp.ContentLength != 5 {
		t.Errorf("ContentLength = %d, want 5", resp.ContentLength)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}

	resp.Header.Set("Content-Range", "changed")
	if entry.Header.Get("Content-Range") != "bytes 0-4/10" {
		t.Error("Response() shares the entry header")
	}
}

func TestTeeBody(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		limit  int64
		called bool
	}{
		{
			name:   "within limit",
			data:   "hello world",
			limit:  64,
			called: true,
		},
		{
			name:   "exactly the limit",
			data:   "hello",
			limit:  5,
			called: true,
		},
		{
			name:   "over limit",
			data:   strings.Repeat("x", 100),
			limit:  10,
			called: false,
		},
		{
			name:   "empty",
			data:   "",
			limit:  10,
			called: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			var got []byte
			body := TeeBody(io.NopCloser(iotest.OneByteReader(strings.NewReader(tt.data))), tt.limit, func(data []byte) {
				calls++
				got = append([]byte(nil), data...)
			})

			read, err := io.ReadAll(body)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(read) != tt.data {
				t.Errorf("read %q, want %q", read, tt.data)
			}

			// Reading past EOF must not report twice.
			_, _ = body.Read(make([]byte, 1))

			if tt.called {
				if calls != 1 {
					t.Fatalf("done called %d times, want 1", calls)
				}
				if !bytes.Equal(got, []byte(tt.data)) {
					t.Errorf("done got %q, want %q", got, tt.data)
				}
			} else if calls != 0 {
				t.Errorf("done called %d times, want 0", calls)
			}
		})
	}
}

func TestTeeBodyNotDrained(t *testing.T) {
	called := false
	body := TeeBody(io.NopCloser(strings.NewReader("hello world")), 64, func([]byte) {
		called = true
	})

	_, _ = body.Read(make([]byte, 5))
	_ = body.Close()

	if called {
		t.Error("done called for a partially read body")
	}
}
