// Package filename turns media titles into file names that are safe on all
// major operating systems.
package filename

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxLen bounds the base name in bytes.
	DefaultMaxLen = 120
	// DefaultName replaces a title that sanitizes to nothing.
	DefaultName = "download"
)

// invalidCharsRe matches characters not safe for filenames across all major OSes.
var invalidCharsRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]+`)

// spaceRe collapses whitespace runs.
var spaceRe = regexp.MustCompile(`\s+`)

// reserved are device names Windows refuses as file names.
var reserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// Sanitize converts a title into a file base name. Unicode is normalized to
// NFC, unsafe characters become underscores, whitespace collapses to single
// spaces, and leading/trailing spaces and dots are stripped. The output is
// truncated to maxLen bytes on a rune boundary (DefaultMaxLen when <= 0).
// The result may be empty.
func Sanitize(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}

	s := norm.NFC.String(name)
	s = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, s)
	s = spaceRe.ReplaceAllString(s, " ")
	s = invalidCharsRe.ReplaceAllString(s, "_")

	// Strip leading/trailing spaces and dots (avoid hidden files / trailing dots on Windows).
	s = strings.Trim(s, " .")

	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], " .")
	}

	if reserved[strings.ToUpper(s)] {
		s = "_" + s
	}
	return s
}

// ForTitle returns "<sanitized title>.<ext>", using DefaultName when nothing
// but replacement characters is left of the title.
func ForTitle(title, ext string) string {
	base := Sanitize(title, DefaultMaxLen)
	if strings.Trim(base, "_ ") == "" {
		base = DefaultName
	}
	ext = strings.Trim(Sanitize(strings.TrimPrefix(ext, "."), 16), "_")
	if ext == "" {
		return base
	}
	return base + "." + strings.ToLower(ext)
}
