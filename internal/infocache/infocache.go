// Package infocache caches resolved media metadata by URL.
package infocache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"thirdcoast.systems/mediagrab/internal/media"
)

type Cache interface {
	Get(ctx context.Context, url string) (*media.Info, bool)
	Set(ctx context.Context, url string, info *media.Info)
	Close() error
}

type Options struct {
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open returns the cache described by o: disabled when TTL is zero, Redis
// when an address is set, in-process otherwise.
func Open(ctx context.Context, o Options) (Cache, error) {
	switch {
	case o.TTL <= 0:
		return Noop{}, nil
	case o.RedisAddr != "":
		c, err := NewRedis(ctx, o)
		if err != nil {
			return nil, err
		}
		slog.Info("Media info cache enabled", "backend", "redis", "addr", o.RedisAddr, "ttl", o.TTL)
		return c, nil
	default:
		slog.Info("Media info cache enabled", "backend", "memory", "ttl", o.TTL)
		return NewMemory(o.TTL), nil
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (*media.Info, bool) { return nil, false }
func (Noop) Set(context.Context, string, *media.Info) {}
func (Noop) Close() error { return nil }

// Memory is an in-process cache with per-entry expiry.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	info    media.Info
	expires time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, url string) (*media.Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[url]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, url)
		return nil, false
	}
	return cloneInfo(&e.info), true
}

func (m *Memory) Set(_ context.Context, url string, info *media.Info) {
	if info == nil {
		return
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[url] = memoryEntry{info: *cloneInfo(info), expires: now.Add(m.ttl)}
}

func (m *Memory) Close() error { return nil }

func cloneInfo(info *media.Info) *media.Info {
	cp := *info
	cp.Formats = append([]media.Format(nil), info.Formats...)
	return &cp
}

func cacheKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return keyPrefix + hex.EncodeToString(sum[:])
}
