// Package application wires configuration into a running download engine.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"thirdcoast.systems/mediagrab/internal/config"
	"thirdcoast.systems/mediagrab/internal/events"
	"thirdcoast.systems/mediagrab/internal/infocache"
	"thirdcoast.systems/mediagrab/internal/jobs"
	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/provider"
	"thirdcoast.systems/mediagrab/internal/resolver"
	"thirdcoast.systems/mediagrab/internal/service"
	"thirdcoast.systems/mediagrab/pkg/ytdlp"
)

// App holds the long-lived components shared by the front ends.
type App struct {
	Config  config.Config
	Service *service.Service
	Jobs    *jobs.Manager
	cache   infocache.Cache
}

// NewYtDlpProvider builds the yt-dlp backed provider and logs its version.
func NewYtDlpProvider(ctx context.Context, conf config.Config) media.Provider {
	client := ytdlp.New()
	client.Path = conf.YtDlpPath
	client.LogCallback = func(stream, line string) {
		slog.Debug("yt-dlp", "stream", stream, "line", line)
	}

	if v, err := client.Version(ctx); err != nil {
		slog.Warn("yt-dlp not available", "path", client.PathOrDefault(), "error", err)
	} else {
		slog.Info("Using yt-dlp", "path", client.PathOrDefault(), "version", v)
	}
	return provider.NewYtDlp(client)
}

// New builds the engine around p. picker may be nil to pick DownloadDir.
func New(ctx context.Context, conf config.Config, p media.Provider, picker service.FolderPicker) (*App, error) {
	if err := os.MkdirAll(conf.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir %s: %w", conf.DownloadDir, err)
	}
	if picker == nil {
		picker = service.StaticFolder(conf.DownloadDir)
	}

	cache, err := OpenCacheWithRetry(ctx, conf.CacheOptions(), conf.RedisRetries)
	if err != nil {
		return nil, err
	}

	manager := jobs.New(p, events.NewBus(), conf.JobOptions())
	return &App{
		Config:  conf,
		Service: service.New(resolver.New(p, cache, conf.ResolveTimeout), manager, picker),
		Jobs:    manager,
		cache:   cache,
	}, nil
}

// Run reaps finished jobs until ctx is done.
func (a *App) Run(ctx context.Context) error {
	return a.Jobs.Run(ctx)
}

// Close cancels running jobs, waits for them within ctx, then releases the cache.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Jobs.Shutdown(ctx), a.cache.Close())
}
