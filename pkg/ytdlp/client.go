package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// streamWriter wraps an io.Writer and calls a callback for each line.
type streamWriter struct {
	stream   string
	callback func(stream string, line string)
	buffer   *bytes.Buffer
	pending  []byte
}

func (w *streamWriter) Write(p []byte) (n int, err error) {
	// Also write to buffer for later retrieval
	if w.buffer != nil {
		w.buffer.Write(p)
	}

	w.pending = append(w.pending, p...)

	// yt-dlp progress output uses carriage returns (\r) to update the same
	// console line, so treat both \n and \r as line boundaries.
	for {
		idx := bytes.IndexAny(w.pending, "\r\n")
		if idx < 0 {
			break
		}

		line := string(w.pending[:idx])

		// Consume delimiter(s). If this is a CRLF sequence, consume both.
		consume := 1
		if w.pending[idx] == '\r' && idx+1 < len(w.pending) && w.pending[idx+1] == '\n' {
			consume = 2
		}
		w.pending = w.pending[idx+consume:]

		if w.callback != nil {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				w.callback(w.stream, trimmed)
			}
		}
	}

	return len(p), nil
}

type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Cmd + " " + strings.Join(e.Args, " "))
	var msg string
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("ytdlp: command failed (exit %d): %s", e.ExitCode, cmdline)
	} else {
		msg = fmt.Sprintf("ytdlp: command failed: %s", cmdline)
	}
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Cause }

// Client runs the yt-dlp binary. Fields must not be modified once the client
// is shared between goroutines.
type Client struct {
	// Path to yt-dlp executable. Defaults to "yt-dlp" (PATH lookup).
	Path string

	// ExtraArgs are always appended before per-call args.
	ExtraArgs []string

	// LogCallback is called for each line of stdout/stderr output of buffered
	// commands, and for each stderr line while a format is streaming.
	LogCallback func(stream string, line string)

	execFn    func(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
	commandFn func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New() *Client {
	return &Client{Path: "yt-dlp"}
}

func (c *Client) fullArgs(args ...string) []string {
	full := make([]string, 0, len(c.ExtraArgs)+len(args))
	full = append(full, c.ExtraArgs...)
	full = append(full, args...)
	return full
}

func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	if c.commandFn != nil {
		return c.commandFn(ctx, c.PathOrDefault(), args...)
	}
	return exec.CommandContext(ctx, c.PathOrDefault(), args...)
}

func (c *Client) exec(ctx context.Context, args ...string) (stdout []byte, stderr []byte, err error) {
	name := c.PathOrDefault()
	fullArgs := c.fullArgs(args...)

	if c.execFn != nil {
		return c.execFn(ctx, name, fullArgs...)
	}

	slog.Debug("ytdlp: Executing command", "cmd", name, "args", fullArgs)
	cmd := c.command(ctx, fullArgs...)
	var outBuf, errBuf bytes.Buffer

	// If LogCallback is set, stream output line-by-line
	if c.LogCallback != nil {
		cmd.Stdout = &streamWriter{stream: "stdout", callback: c.LogCallback, buffer: &outBuf}
		cmd.Stderr = &streamWriter{stream: "stderr", callback: c.LogCallback, buffer: &errBuf}
	} else {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
	}

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Version returns `yt-dlp --version`.
func (c *Client) Version(ctx context.Context) (string, error) {
	args := []string{"--version"}
	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return "", wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}
	return strings.TrimSpace(string(stdout)), nil
}

// Format is one entry of the "formats" array in yt-dlp JSON output.
type Format struct {
	FormatID       string  `json:"format_id"`
	FormatNote     string  `json:"format_note"`
	Ext            string  `json:"ext"`
	Protocol       string  `json:"protocol"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
	ASR            float64 `json:"asr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

// HasVideo reports whether the format carries a video track.
func (f Format) HasVideo() bool {
	return codecPresent(f.VCodec)
}

// HasAudio reports whether the format carries an audio track.
func (f Format) HasAudio() bool {
	return codecPresent(f.ACodec)
}

// Size returns the exact size when yt-dlp knows it, else the approximate one.
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	if f.FilesizeApprox > 0 {
		return f.FilesizeApprox
	}
	return 0
}

func codecPresent(codec string) bool {
	c := strings.ToLower(strings.TrimSpace(codec))
	return c != "" && c != "none"
}

// Thumbnail is one entry of the "thumbnails" array.
type Thumbnail struct {
	URL        string `json:"url"`
	Preference int    `json:"preference"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Info is a light wrapper over yt-dlp JSON output. It intentionally models only common fields.
// The full JSON is preserved in Raw.
type Info struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	WebpageURL   string          `json:"webpage_url"`
	Extractor    string          `json:"extractor"`
	ExtractorKey string          `json:"extractor_key"`
	Uploader     string          `json:"uploader"`
	Duration     float64         `json:"duration"`
	Thumbnail    string          `json:"thumbnail"`
	Thumbnails   []Thumbnail     `json:"thumbnails"`
	Formats      []Format        `json:"formats"`
	Raw          json.RawMessage `json:"-"`
}

// ThumbnailURL returns the top-level thumbnail, falling back to the first
// usable entry of the thumbnails list.
func (i *Info) ThumbnailURL() string {
	if t := strings.TrimSpace(i.Thumbnail); t != "" {
		return t
	}
	for _, t := range i.Thumbnails {
		if u := strings.TrimSpace(t.URL); u != "" {
			return u
		}
	}
	return ""
}

// GetInfo runs yt-dlp in "metadata only" mode and parses its JSON output.
// It uses: --dump-single-json --skip-download
func (c *Client) GetInfo(ctx context.Context, url string, extraArgs ...string) (*Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}

	args := []string{"--dump-single-json", "--skip-download"}
	args = append(args, extraArgs...)
	args = append(args, url)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return nil, wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}

	raw := bytes.TrimSpace(stdout)
	info := &Info{Raw: append([]byte(nil), raw...)}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("ytdlp: parse json: %w", err)
	}

	return info, nil
}

// PathOrDefault returns the configured path or "yt-dlp" if unset.
func (c *Client) PathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "yt-dlp"
	}
	return c.Path
}

// Update runs `yt-dlp -U` to update to the latest version.
func (c *Client) Update(ctx context.Context, extraArgs ...string) error {
	args := []string{"-U"}
	args = append(args, extraArgs...)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}
	return nil
}

func wrapExecError(cmd string, args []string, stdout []byte, stderr []byte, cause error) error {
	exitCode := 0
	var ee *exec.ExitError
	if errors.As(cause, &ee) {
		exitCode = ee.ExitCode()
	}

	return &ExecError{
		Cmd:      cmd,
		Args:     args,
		ExitCode: exitCode,
		Stdout:   strings.TrimSpace(string(stdout)),
		Stderr:   strings.TrimSpace(string(stderr)),
		Cause:    cause,
	}
}

// lastLine returns the last non-empty line of s; yt-dlp puts the actual
// error ("ERROR: ...") there.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if idx := strings.LastIndexAny(s, "\r\n"); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
