package utils

import (
	"net/http"
	"testing"
)

func TestEndToEndHeader(t *testing.T) {
	h := http.Header{
		"Connection":        {"keep-alive, X-Custom-Hop"},
		"Keep-Alive":        {"timeout=5"},
		"Transfer-Encoding": {"chunked"},
		"X-Custom-Hop":      {"1"},
		"Cache-Control":     {"max-age=60"},
		"Content-Type":      {"text/html"},
	}

	got := EndToEndHeader(h)

	for _, name := range []string{"Connection", "Keep-Alive", "Transfer-Encoding", "X-Custom-Hop"} {
		if _, ok := got[name]; ok {
			t.Errorf("%s was kept", name)
		}
	}
	if got.Get("Cache-Control") != "max-age=60" || got.Get("Content-Type") != "text/html" {
		t.Errorf("end-to-end headers lost: %v", got)
	}
	if h.Get("Connection") == "" {
		t.Error("EndToEndHeader() modified its input")
	}
}

func TestEndToEndHeaderNil(t *testing.T) {
	if got := EndToEndHeader(nil); got == nil {
		t.Error("EndToEndHeader(nil) = nil, want an empty header")
	}
}
