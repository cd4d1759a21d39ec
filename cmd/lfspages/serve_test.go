package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestConfigKey(t *testing.T) {
	tests := map[string]string{
		"addr":              "addr",
		"keep-headers":      "keep_headers",
		"s3-use-path-style": "s3_use_path_style",
	}
	for flag, want := range tests {
		if got := configKey(flag); got != want {
			t.Errorf("configKey(%q) = %q, want %q", flag, got, want)
		}
	}
}

func TestReadLFSConfig(t *testing.T) {
	root := t.TempDir()
	config := "[lfs]\n\turl = https://lfs.example.com/repo.git/info/lfs\n"

	got, err := readLFSConfig(root, "")
	if err != nil {
		t.Fatalf("readLFSConfig() error = %v", err)
	}
	if got != "" {
		t.Errorf("readLFSConfig() = %q, want empty for a missing file", got)
	}

	if err := os.WriteFile(filepath.Join(root, ".lfsconfig"), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = readLFSConfig(root, "")
	if err != nil {
		t.Fatalf("readLFSConfig() error = %v", err)
	}
	if got != config {
		t.Errorf("readLFSConfig() = %q, want %q", got, config)
	}

	explicit := filepath.Join(t.TempDir(), "lfsconfig")
	if err := os.WriteFile(explicit, []byte("[lfs]\nurl = https://other.example.com\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = readLFSConfig(root, explicit)
	if err != nil {
		t.Fatalf("readLFSConfig() error = %v", err)
	}
	if got == config {
		t.Error("readLFSConfig() ignored the explicit path")
	}

	if got, err := readLFSConfig("", ""); err != nil || got != "" {
		t.Errorf("readLFSConfig() without root = %q, %v", got, err)
	}
}

func TestNewOrigin(t *testing.T) {
	if _, err := newOrigin("", ""); err == nil {
		t.Error("newOrigin() expected error without root or origin")
	}
	if _, err := newOrigin(t.TempDir(), ""); err != nil {
		t.Errorf("newOrigin() error = %v", err)
	}
	if _, err := newOrigin("", "https://site.example.com"); err != nil {
		t.Errorf("newOrigin() error = %v", err)
	}
}

func TestRunServerWaitsForInFlightRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(started)
			<-release
			finished.Store(true)
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	waited := make(chan bool, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- runServer(ctx, server, ln, func() {
			waited <- finished.Load()
		})
	}()

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	<-started
	cancel()

	// Shutdown has begun and Serve has returned by now.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-waited:
		t.Fatal("wait ran while a request was still in flight")
	default:
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("runServer() error = %v", err)
	}
	if !<-waited {
		t.Error("wait ran before the request finished")
	}
}
