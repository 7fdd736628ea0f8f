package infocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"thirdcoast.systems/mediagrab/internal/media"
)

const (
	keyPrefix    = "mediagrab:info:"
	redisTimeout = 2 * time.Second
)

// Redis stores metadata as JSON under keyPrefix + sha1(url).
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, o Options) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         o.RedisAddr,
		Password:     o.RedisPassword,
		DB:           o.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.RedisAddr, err)
	}
	return &Redis{client: client, ttl: o.TTL}, nil
}

// Get treats every Redis error as a miss.
func (r *Redis) Get(ctx context.Context, url string) (*media.Info, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	b, err := r.client.Get(ctx, cacheKey(url)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Media info cache read failed", "url", url, "error", err)
		}
		return nil, false
	}
	var info media.Info
	if err := json.Unmarshal(b, &info); err != nil {
		slog.Warn("Discarding unreadable cached media info", "url", url, "error", err)
		return nil, false
	}
	return &info, true
}

func (r *Redis) Set(ctx context.Context, url string, info *media.Info) {
	if info == nil {
		return
	}
	b, err := json.Marshal(info)
	if err != nil {
		slog.Warn("Media info cache encode failed", "url", url, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := r.client.Set(ctx, cacheKey(url), b, r.ttl).Err(); err != nil {
		slog.Warn("Media info cache write failed", "url", url, "error", err)
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
