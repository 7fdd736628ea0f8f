package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"thirdcoast.systems/mediagrab/internal/infocache"
)

var (
	cacheOpenBackoffBase  = 1 * time.Second
	cacheOpenBackoffScale = 1.618
)

// OpenCacheWithRetry opens the metadata cache, retrying with exponential
// backoff while the backend is unreachable.
func OpenCacheWithRetry(ctx context.Context, opts infocache.Options, retries int) (infocache.Cache, error) {
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		cache, err := infocache.Open(ctx, opts)
		if err == nil {
			return cache, nil
		}
		lastErr = err
		if i == retries-1 {
			break
		}

		backoff := time.Duration(float64(cacheOpenBackoffBase) * math.Pow(cacheOpenBackoffScale, float64(i)))
		slog.Warn("Metadata cache unavailable, retrying", "error", err, "attempt", i+1, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("open metadata cache after %d attempts: %w", retries, lastErr)
}
