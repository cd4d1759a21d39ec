package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUserAgentRoundTripper(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := &http.Client{
		Transport: newUserAgentRoundTripper(server.Client().Transport),
	}

	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{"default", "", UserAgent},
		{"caller wins", "custom/1.0", "custom/1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			if tt.userAgent != "" {
				req.Header.Set("User-Agent", tt.userAgent)
			}
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			_ = resp.Body.Close()

			if got != tt.want {
				t.Errorf("User-Agent = %q, want %q", got, tt.want)
			}
			if tt.userAgent == "" && req.Header.Get("User-Agent") != "" {
				t.Error("RoundTrip() modified the caller's request")
			}
		})
	}
}
