// Package format renders sizes, percentages and durations for display.
package format

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Bytes returns a human-readable byte size (e.g. "1.5 MB"); "?" when unknown.
func Bytes(b int64) string {
	if b < 0 {
		return "?"
	}
	return humanize.Bytes(uint64(b))
}

// Percent formats p with one decimal, clamped to [0, 100].
func Percent(p float64) string {
	return fmt.Sprintf("%.1f%%", min(max(p, 0), 100))
}

// Progress renders "3.1 MB / 12 MB (25.0%)", or just the downloaded size
// while the total is unknown.
func Progress(downloaded, total int64, percent float64) string {
	if total <= 0 {
		return Bytes(downloaded)
	}
	return fmt.Sprintf("%s / %s (%s)", Bytes(downloaded), Bytes(total), Percent(percent))
}

// Rate renders a transfer rate such as "2.4 MB/s".
func Rate(bytes int64, elapsed time.Duration) string {
	if elapsed <= 0 || bytes <= 0 {
		return "0 B/s"
	}
	return humanize.Bytes(uint64(float64(bytes)/elapsed.Seconds())) + "/s"
}

// Duration converts seconds to "M:SS" or "H:MM:SS" display format.
func Duration(seconds float64) string {
	if seconds < 0 {
		return "0:00"
	}
	s := int(seconds)
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// Truncate returns s truncated to max runes with a "..." suffix.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
