// Package media holds the domain types shared by the download engine: media
// references, format descriptors, resolved metadata, job states and the
// contract toward the provider that extracts formats and streams bytes.
package media

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Kind is the quality class of a format.
type Kind int

const (
	KindVideo Kind = iota + 1
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses "video" or "audio" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video":
		return KindVideo, nil
	case "audio":
		return KindAudio, nil
	default:
		return 0, fmt.Errorf("unknown media kind %q", s)
	}
}

// DefaultExt is the file extension used when a format does not declare a container.
func (k Kind) DefaultExt() string {
	if k == KindAudio {
		return "mp3"
	}
	return "mp4"
}

// Reference identifies a requested resource.
type Reference struct {
	URL string `json:"url"`
}

// Format is one downloadable variant of a media resource.
type Format struct {
	ID          string  `json:"id"`
	Kind        Kind    `json:"kind"`
	QualityRank float64 `json:"quality_rank"`
	Container   string  `json:"container,omitempty"`
	// Size is the declared size in bytes; 0 when the provider does not know it.
	Size int64  `json:"size,omitempty"`
	Note string `json:"note,omitempty"`
}

// Ext returns the file extension for this format.
func (f Format) Ext() string {
	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f.Container)), ".")
	if ext == "" {
		return f.Kind.DefaultExt()
	}
	return ext
}

// Info is the resolved metadata for a media resource.
type Info struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	// Duration in seconds; 0 when unknown.
	Duration float64  `json:"duration,omitempty"`
	Formats  []Format `json:"formats"`
}

// Provider extracts metadata and opens byte streams for a URL.
type Provider interface {
	GetMediaInfo(ctx context.Context, url string) (*Info, error)
	// OpenFormatStream returns the byte stream for formatID and its total
	// size in bytes, or a value <= 0 when the size is not known upfront.
	OpenFormatStream(ctx context.Context, url string, formatID string) (io.ReadCloser, int64, error)
}
