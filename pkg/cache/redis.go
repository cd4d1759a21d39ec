package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of the redis client used by Redis.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Redis is a Cache shared through a redis server. Entry expiry maps to the key TTL.
type Redis struct {
	client RedisClient
	prefix string
}

// NewRedis creates a Redis cache storing all keys below prefix.
func NewRedis(client RedisClient, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

// Get returns the entry stored under key.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	entry, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if entry.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Put stores entry under key.
func (r *Redis) Put(ctx context.Context, key string, entry *Entry) error {
	var ttl time.Duration
	if !entry.Expires.IsZero() {
		ttl = time.Until(entry.Expires)
		if ttl <= 0 {
			return nil
		}
	}

	data, err := Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, data, ttl).Err()
}

// Health checks redis connectivity.
func (r *Redis) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
