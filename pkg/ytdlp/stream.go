package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Stream is the stdout of a running `yt-dlp -o -` process. Reading returns the
// media bytes; once stdout is exhausted the process exit status is checked, so
// a failed download surfaces as an *ExecError instead of a clean io.EOF.
type Stream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	name   string
	args   []string

	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

// OpenStream starts yt-dlp writing the given format to stdout.
func (c *Client) OpenStream(ctx context.Context, url string, formatID string, extraArgs ...string) (*Stream, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(formatID) == "" {
		return nil, fmt.Errorf("ytdlp: format id is required")
	}

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-colors",
		"--format", formatID,
		"-o", "-",
	}
	args = append(args, extraArgs...)
	args = append(args, url)
	full := c.fullArgs(args...)

	s := &Stream{
		cmd:  c.command(ctx, full...),
		name: c.PathOrDefault(),
		args: full,
	}
	s.cmd.Stderr = &streamWriter{stream: "stderr", callback: c.LogCallback, buffer: &s.stderr}

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ytdlp: failed to create stdout pipe: %w", err)
	}
	s.stdout = stdout

	if err := s.cmd.Start(); err != nil {
		return nil, wrapExecError(s.name, s.args, nil, nil, err)
	}

	return s, nil
}

// PID returns the process ID of the running yt-dlp.
func (s *Stream) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		if werr := s.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// Close kills the process if it is still running and reaps it. It is safe to
// call Close more than once and concurrently with Read.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.wait()
	})
	return nil
}

// Stderr returns what yt-dlp wrote to stderr. Complete only after the stream
// has been read to the end or closed.
func (s *Stream) Stderr() string {
	return strings.TrimSpace(s.stderr.String())
}

func (s *Stream) wait() error {
	s.waitOnce.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			s.waitErr = wrapExecError(s.name, s.args, nil, s.stderr.Bytes(), err)
		}
	})
	return s.waitErr
}
