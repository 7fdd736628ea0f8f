// Package sourceurl maps the many spellings of a media page URL to one
// canonical form, so that metadata cached for one spelling serves the others.
package sourceurl

import (
	"errors"
	"net/url"
	"strings"
)

// Host aliases that point at the same site. Key: input host. Value: canonical host.
var canonicalHosts = map[string]string{
	"youtube.com":       "youtube.com",
	"www.youtube.com":   "youtube.com",
	"m.youtube.com":     "youtube.com",
	"music.youtube.com": "youtube.com",
	"youtu.be":          "youtube.com",

	"x.com":              "x.com",
	"www.x.com":          "x.com",
	"twitter.com":        "x.com",
	"www.twitter.com":    "x.com",
	"mobile.twitter.com": "x.com",

	"twitch.tv":     "twitch.tv",
	"www.twitch.tv": "twitch.tv",
	"m.twitch.tv":   "twitch.tv",

	"vimeo.com":     "vimeo.com",
	"www.vimeo.com": "vimeo.com",
}

// youtubeIDPrefixes are path prefixes followed by a video id.
var youtubeIDPrefixes = []string{"/embed/", "/v/", "/shorts/", "/live/"}

// CanonicalHost returns the canonical host for host, or host itself
// (lowercased, without port) when it has no alias.
func CanonicalHost(host string) string {
	h := normalizeHost(host)
	if c, ok := canonicalHosts[h]; ok {
		return c
	}
	return h
}

// Canonical rewrites an absolute http(s) URL to its canonical form:
// https, canonical host, no fragment or userinfo, no trailing slash. Known
// video sites also lose the query parameters that do not select the video
// (timestamps, share tracking). Unknown hosts keep their query.
func Canonical(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("sourceurl: not an http(s) url")
	}
	if u.Host == "" {
		return "", errors.New("sourceurl: missing host")
	}

	host := CanonicalHost(u.Host)
	youtubeID := ""
	if host == "youtube.com" {
		youtubeID = YouTubeID(u)
	}

	u.Scheme = "https"
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	u.RawPath = ""

	switch host {
	case "youtube.com":
		// Without an id (channels, playlists) the query may matter.
		if youtubeID != "" {
			u.Path = "/watch"
			u.RawQuery = url.Values{"v": {youtubeID}}.Encode()
		}
	case "x.com", "twitch.tv", "vimeo.com":
		u.RawQuery = ""
	}

	return u.String(), nil
}

// YouTubeID extracts the video id of a youtube.com or youtu.be URL, or ""
// when u does not name a single video.
func YouTubeID(u *url.URL) string {
	host := normalizeHost(u.Host)
	if host == "youtu.be" {
		return firstPathSegment(u.Path)
	}
	if canonicalHosts[host] != "youtube.com" {
		return ""
	}
	if v := strings.TrimSpace(u.Query().Get("v")); v != "" {
		return v
	}
	for _, prefix := range youtubeIDPrefixes {
		if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
			return firstPathSegment(rest)
		}
	}
	return ""
}

func normalizeHost(hostport string) string {
	h := strings.TrimSpace(strings.ToLower(hostport))
	if h == "" {
		return ""
	}
	if parsed, err := url.Parse("//" + h); err == nil && parsed.Hostname() != "" {
		h = parsed.Hostname()
	}
	return strings.TrimSuffix(h, ".")
}

func firstPathSegment(p string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(strings.TrimSpace(p), "/"), "/")
	return strings.TrimSpace(seg)
}
