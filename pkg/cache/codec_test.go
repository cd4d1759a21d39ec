package cache

import (
	"bytes"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestMarshalEntry(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		entry *Entry
	}{
		{
			name: "full",
			entry: &Entry{
				Status:  http.StatusOK,
				Header:  http.Header{"Content-Type": {"image/png"}, "Cache-Control": {"immutable, max-age=31536000"}},
				Body:    []byte("binary\n\x00data\nwith newlines"),
				Expires: expires,
			},
		},
		{
			name: "head",
			entry: &Entry{
				Status: http.StatusOK,
				Header: http.Header{"Content-Length": {"1024"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.entry)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			if got.Status != tt.entry.Status {
				t.Errorf("Status = %d, want %d", got.Status, tt.entry.Status)
			}
			if !bytes.Equal(got.Body, tt.entry.Body) {
				t.Errorf("Body = %q, want %q", got.Body, tt.entry.Body)
			}
			if !got.Expires.Equal(tt.entry.Expires) {
				t.Errorf("Expires = %v, want %v", got.Expires, tt.entry.Expires)
			}
			for key := range tt.entry.Header {
				if got.Header.Get(key) != tt.entry.Header.Get(key) {
					t.Errorf("Header[%s] = %q, want %q", key, got.Header.Get(key), tt.entry.Header.Get(key))
				}
			}
		})
	}
}

func TestUnmarshalCorrupt(t *testing.T) {
	if _, err := Unmarshal([]byte("not zstd")); !errors.Is(err, errCorruptEntry) {
		t.Errorf("Unmarshal() error = %v, want %v", err, errCorruptEntry)
	}

	noSeparator := encoder.EncodeAll([]byte(`{"status":200}`), nil)
	if _, err := Unmarshal(noSeparator); !errors.Is(err, errCorruptEntry) {
		t.Errorf("Unmarshal() error = %v, want %v", err, errCorruptEntry)
	}
}
