// Package resolver turns a URL into media metadata and picks formats.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/sourceurl"
)

// Cache stores resolved metadata by URL. A miss returns (nil, false).
type Cache interface {
	Get(ctx context.Context, url string) (*media.Info, bool)
	Set(ctx context.Context, url string, info *media.Info)
}

type Resolver struct {
	provider media.Provider
	cache    Cache
	timeout  time.Duration
}

// New returns a resolver. cache may be nil; timeout <= 0 means no limit
// beyond the caller's context.
func New(provider media.Provider, cache Cache, timeout time.Duration) *Resolver {
	return &Resolver{provider: provider, cache: cache, timeout: timeout}
}

// Resolve fetches metadata for rawURL. Every failure wraps media.ErrResolution,
// including metadata that lists no formats.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*media.Info, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	key := cacheKey(u)
	if r.cache != nil {
		if info, ok := r.cache.Get(ctx, key); ok {
			slog.Debug("Resolved media from cache", "url", u, "key", key)
			return info, nil
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	info, err := r.provider.GetMediaInfo(ctx, u)
	if err != nil {
		slog.Warn("Media resolution failed", "url", u, "error", err, "elapsed", time.Since(start))
		return nil, fmt.Errorf("%w: %w", media.ErrResolution, err)
	}
	if info == nil || len(info.Formats) == 0 {
		return nil, fmt.Errorf("%w: no formats for %s", media.ErrResolution, u)
	}

	slog.Info("Resolved media", "url", u, "title", info.Title, "formats", len(info.Formats), "elapsed", time.Since(start))
	if r.cache != nil {
		r.cache.Set(ctx, key, info)
	}
	return info, nil
}

// cacheKey is the canonical spelling of u, so equivalent URLs share an entry.
func cacheKey(u string) string {
	if c, err := sourceurl.Canonical(u); err == nil {
		return c
	}
	return u
}

// NormalizeURL trims rawURL and requires an absolute http(s) URL.
func NormalizeURL(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", fmt.Errorf("%w: url is required", media.ErrResolution)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", media.ErrResolution, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", media.ErrResolution, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", media.ErrResolution)
	}
	return u.String(), nil
}

// SelectFormat returns the format of kind with the highest rank. Ties go to
// the earliest format in the list.
func SelectFormat(formats []media.Format, kind media.Kind) (media.Format, error) {
	var best media.Format
	found := false
	for _, f := range formats {
		if f.Kind != kind {
			continue
		}
		if !found || f.QualityRank > best.QualityRank {
			best = f
			found = true
		}
	}
	if !found {
		return media.Format{}, fmt.Errorf("%w: no %s format", media.ErrNoMatchingFormat, kind)
	}
	return best, nil
}

// IsUserError reports whether err comes from bad input rather than a fault.
func IsUserError(err error) bool {
	return errors.Is(err, media.ErrResolution) || errors.Is(err, media.ErrNoMatchingFormat)
}
