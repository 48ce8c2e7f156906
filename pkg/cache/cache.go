// Package cache keeps raw API responses for a TTL so repeated collection
// runs do not spend rate-limited quota on pages they already have.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores response bodies by key.
type Cache interface {
	// Get returns the body and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte) error
}

// Key derives a cache key from a request URL. Credentials travel in
// headers, never in the URL, so the URL alone identifies the response.
func Key(source, url string) string {
	sum := sha256.Sum256([]byte(url))
	return "hubgraph:resp:" + source + ":" + hex.EncodeToString(sum[:12])
}

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
	}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, body []byte) error {
	return c.client.Set(ctx, key, body, c.ttl).Err()
}

// Ping checks the connection.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error { return c.client.Close() }

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }

// Memory is an in-process Cache with a TTL, used when no Redis is configured
// for a long-running serve process and in tests.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memItem
	now   func() time.Time
}

type memItem struct {
	body    []byte
	expires time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, items: make(map[string]memItem), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if m.ttl > 0 && m.now().After(it.expires) {
		delete(m.items, key)
		return nil, false, nil
	}
	return it.body, true, nil
}

func (m *Memory) Set(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memItem{body: append([]byte(nil), body...), expires: m.now().Add(m.ttl)}
	return nil
}
