package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data: map[string]string{},
		ttls: map[string]time.Duration{},
	}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error {
	return nil
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	r := NewRedis(fake, "lfspages:")

	if err := r.Health(ctx); err != nil {
		t.Fatalf("Health() error = %v", err)
	}

	if _, err := r.Get(ctx, "key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want %v", err, ErrNotFound)
	}

	entry := &Entry{
		Status:  http.StatusOK,
		Header:  http.Header{"Content-Type": {"image/png"}},
		Body:    []byte("png"),
		Expires: time.Now().Add(time.Hour),
	}
	if err := r.Put(ctx, "key", entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, ok := fake.data["lfspages:key"]; !ok {
		t.Fatalf("Put() did not store under the prefix: %v", fake.data)
	}
	if ttl := fake.ttls["lfspages:key"]; ttl <= 0 || ttl > time.Hour {
		t.Errorf("ttl = %v, want within an hour", ttl)
	}

	got, err := r.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Body) != "png" {
		t.Errorf("Get() body = %q", got.Body)
	}
}

func TestRedisNoExpiry(t *testing.T) {
	fake := newFakeRedis()
	r := NewRedis(fake, "")

	if err := r.Put(context.Background(), "key", &Entry{Status: http.StatusOK}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if ttl, ok := fake.ttls["key"]; !ok || ttl != 0 {
		t.Errorf("ttl = %v, %v, want 0", ttl, ok)
	}
}

func TestRedisSkipsExpired(t *testing.T) {
	fake := newFakeRedis()
	r := NewRedis(fake, "")

	err := r.Put(context.Background(), "key", &Entry{
		Status:  http.StatusOK,
		Expires: time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if len(fake.data) != 0 {
		t.Errorf("expired entry was stored: %v", fake.data)
	}
}
