package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/mediagrab/internal/config"
	"thirdcoast.systems/mediagrab/internal/infocache"
	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/media/mediatest"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		DownloadDir:            filepath.Join(t.TempDir(), "downloads"),
		YtDlpPath:              "yt-dlp",
		MaxConcurrentTransfers: 2,
		InfoCacheTTL:           time.Minute,
		RedisRetries:           1,
	}
}

func TestNew_CreatesDownloadDirAndUsesItAsDefaultFolder(t *testing.T) {
	conf := testConfig(t)
	p := mediatest.NewProvider()
	p.Infos["https://example/video123"] = &media.Info{Title: "Demo", Formats: []media.Format{{ID: "v1", Kind: media.KindVideo}}}

	app, err := New(context.Background(), conf, p, nil)
	require.NoError(t, err)
	require.DirExists(t, conf.DownloadDir)

	folder, err := app.Service.ChooseDestinationFolder(context.Background())
	require.NoError(t, err)
	require.Equal(t, conf.DownloadDir, folder)

	// Metadata cache is on: a second fetch does not reach the provider.
	_, err = app.Service.FetchInfo(context.Background(), "https://example/video123")
	require.NoError(t, err)
	_, err = app.Service.FetchInfo(context.Background(), "https://example/video123")
	require.NoError(t, err)
	require.Equal(t, 1, p.InfoCalls())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, app.Close(ctx))
}

func TestOpenCacheWithRetry(t *testing.T) {
	cacheOpenBackoffBase = time.Millisecond
	t.Cleanup(func() { cacheOpenBackoffBase = time.Second })

	c, err := OpenCacheWithRetry(context.Background(), infocache.Options{}, 0)
	require.NoError(t, err)
	require.IsType(t, infocache.Noop{}, c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = OpenCacheWithRetry(ctx, infocache.Options{TTL: time.Minute, RedisAddr: "127.0.0.1:1"}, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "2 attempts")
}
