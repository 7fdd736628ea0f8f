// Package provider adapts media extraction backends to media.Provider.
package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/pkg/ytdlp"
)

// Ranks are composite keys: the primary measure is scaled so that the
// secondary measures only break ties within it.
const (
	rankPrimary   = 1_000_000
	rankSecondary = 1_000
	maxTieBreak   = 999
)

// YtDlp is a media.Provider backed by the yt-dlp binary.
type YtDlp struct {
	client *ytdlp.Client
}

func NewYtDlp(client *ytdlp.Client) *YtDlp {
	if client == nil {
		client = ytdlp.New()
	}
	return &YtDlp{client: client}
}

func (p *YtDlp) GetMediaInfo(ctx context.Context, url string) (*media.Info, error) {
	info, err := p.client.GetInfo(ctx, url, "--no-playlist")
	if err != nil {
		return nil, err
	}

	return &media.Info{
		Title:        strings.TrimSpace(info.Title),
		ThumbnailURL: info.ThumbnailURL(),
		Duration:     info.Duration,
		Formats:      ConvertFormats(info.Formats),
	}, nil
}

// OpenFormatStream streams formatID through yt-dlp's stdout. yt-dlp does not
// report a size on stdout, so the total is always unknown here; callers use
// the size declared by the format instead.
func (p *YtDlp) OpenFormatStream(ctx context.Context, url string, formatID string) (io.ReadCloser, int64, error) {
	s, err := p.client.OpenStream(ctx, url, formatID)
	if err != nil {
		return nil, 0, fmt.Errorf("open stream %s: %w", formatID, err)
	}
	slog.Debug("yt-dlp stream started", "format", formatID, "pid", s.PID())
	return s, -1, nil
}

// ConvertFormats maps yt-dlp formats to format descriptors, preserving order.
// Formats with neither an audio nor a video track (storyboards, images) are
// dropped.
func ConvertFormats(formats []ytdlp.Format) []media.Format {
	out := make([]media.Format, 0, len(formats))
	for _, f := range formats {
		id := strings.TrimSpace(f.FormatID)
		if id == "" {
			continue
		}

		d := media.Format{
			ID:        id,
			Container: strings.ToLower(strings.TrimSpace(f.Ext)),
			Size:      f.Size(),
			Note:      strings.TrimSpace(f.FormatNote),
		}

		switch {
		case f.HasVideo():
			d.Kind = media.KindVideo
			d.QualityRank = videoRank(f)
		case f.HasAudio():
			d.Kind = media.KindAudio
			d.QualityRank = audioRank(f)
		default:
			continue
		}

		out = append(out, d)
	}
	return out
}

// videoRank orders by height, then fps, then total bitrate.
func videoRank(f ytdlp.Format) float64 {
	return float64(f.Height)*rankPrimary + min(f.FPS, maxTieBreak)*rankSecondary + min(f.TBR, maxTieBreak)
}

// audioRank orders by audio bitrate (total bitrate when absent), then sample rate.
func audioRank(f ytdlp.Format) float64 {
	abr := f.ABR
	if abr <= 0 {
		abr = f.TBR
	}
	return abr*rankSecondary + min(f.ASR/1000, maxTieBreak)
}
