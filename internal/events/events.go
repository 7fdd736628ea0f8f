// Package events delivers per-job transfer events to listeners.
package events

import (
	"time"

	"thirdcoast.systems/mediagrab/internal/media"
)

// Kind tags an event.
type Kind int

const (
	KindProgress Kind = iota + 1
	KindCompleted
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindCompleted:
		return "completed"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one notification about a job.
type Event struct {
	JobID      string
	Kind       Kind
	Downloaded int64
	// Total is 0 while the size is unknown.
	Total   int64
	Percent float64
	// Path is set on completion.
	Path string
	// Err is set on failure.
	Err error
	At  time.Time
}

// Terminal reports whether e is the last event of its job.
func (e Event) Terminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindFailed
}

// Reason is the human readable failure cause, empty unless failed.
func (e Event) Reason() string {
	if e.Kind != KindFailed {
		return ""
	}
	return media.UserMessage(e.Err)
}

// Percent returns downloaded/total*100 clamped to [0, 100]; 0 when total is unknown.
func Percent(downloaded, total int64) float64 {
	if total <= 0 || downloaded <= 0 {
		return 0
	}
	if downloaded >= total {
		return 100
	}
	return float64(downloaded) / float64(total) * 100
}
