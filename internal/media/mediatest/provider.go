// Package mediatest provides an in-memory media.Provider for tests.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"thirdcoast.systems/mediagrab/internal/media"
)

// ErrStreamClosed is returned by a blocked Read after Close.
var ErrStreamClosed = errors.New("mediatest: stream closed")

// StreamSpec scripts the stream returned for one format id.
type StreamSpec struct {
	// Chunks are returned by successive Read calls, one chunk per call.
	Chunks [][]byte
	// Total is reported by OpenFormatStream; <= 0 means unknown.
	Total int64
	// OpenErr fails OpenFormatStream.
	OpenErr error
	// ReadErr is returned once the chunks are exhausted, instead of io.EOF.
	ReadErr error
	// Block makes Read wait for Close once the chunks are exhausted.
	Block bool
}

// Provider is a scripted media.Provider. Configure it before use.
type Provider struct {
	Infos   map[string]*media.Info
	InfoErr error
	Streams map[string]StreamSpec

	mu        sync.Mutex
	infoCalls int
	opened    []*Stream
	openedCh  chan *Stream
}

func NewProvider() *Provider {
	return &Provider{
		Infos:    make(map[string]*media.Info),
		Streams:  make(map[string]StreamSpec),
		openedCh: make(chan *Stream, 64),
	}
}

func (p *Provider) GetMediaInfo(ctx context.Context, url string) (*media.Info, error) {
	p.mu.Lock()
	p.infoCalls++
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.InfoErr != nil {
		return nil, p.InfoErr
	}
	info, ok := p.Infos[url]
	if !ok {
		return nil, fmt.Errorf("mediatest: unsupported url %q", url)
	}
	cp := *info
	cp.Formats = append([]media.Format(nil), info.Formats...)
	return &cp, nil
}

func (p *Provider) OpenFormatStream(ctx context.Context, url string, formatID string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	spec, ok := p.Streams[formatID]
	if !ok {
		return nil, 0, fmt.Errorf("mediatest: no stream for format %q", formatID)
	}
	if spec.OpenErr != nil {
		return nil, 0, spec.OpenErr
	}

	chunks := make([][]byte, len(spec.Chunks))
	for i, c := range spec.Chunks {
		chunks[i] = append([]byte(nil), c...)
	}
	s := &Stream{
		chunks:  chunks,
		readErr: spec.ReadErr,
		block:   spec.Block,
		closed:  make(chan struct{}),
	}

	p.mu.Lock()
	p.opened = append(p.opened, s)
	p.mu.Unlock()
	select {
	case p.openedCh <- s:
	default:
	}

	return s, spec.Total, nil
}

// InfoCalls returns how many times GetMediaInfo was called.
func (p *Provider) InfoCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.infoCalls
}

// Opened returns the streams opened so far.
func (p *Provider) Opened() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Stream(nil), p.opened...)
}

// NextOpened returns a channel that yields each stream as it is opened.
func (p *Provider) NextOpened() <-chan *Stream {
	return p.openedCh
}

// Stream is the reader handed out by Provider.
type Stream struct {
	chunks  [][]byte
	readErr error
	block   bool

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *Stream) Read(b []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, ErrStreamClosed
	default:
	}

	if len(s.chunks) > 0 {
		n := copy(b, s.chunks[0])
		s.chunks[0] = s.chunks[0][n:]
		if len(s.chunks[0]) == 0 {
			s.chunks = s.chunks[1:]
		}
		return n, nil
	}
	if s.block {
		<-s.closed
		return 0, ErrStreamClosed
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	return 0, io.EOF
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Done is closed when the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.closed
}
