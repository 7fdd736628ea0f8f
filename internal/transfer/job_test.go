package transfer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/mediagrab/internal/events"
	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/media/mediatest"
)

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) emit(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) all() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.events...)
}

func terminalCount(evs []events.Event) int {
	n := 0
	for _, ev := range evs {
		if ev.Terminal() {
			n++
		}
	}
	return n
}

var videoFormat = media.Format{ID: "v1", Kind: media.KindVideo, QualityRank: 3}

func TestRun_CompletesAndRenamesPartFile(t *testing.T) {
	p := mediatest.NewProvider()
	p.Streams["v1"] = mediatest.StreamSpec{Chunks: [][]byte{[]byte("hello "), []byte("world!")}, Total: 12}

	dest := filepath.Join(t.TempDir(), "Demo.mp4")
	j := New("job-1", media.Reference{URL: "https://example/video123"}, videoFormat, dest, p)

	var c collector
	j.Run(context.Background(), c.emit)

	got := c.all()
	require.Len(t, got, 3)
	require.Equal(t, events.KindProgress, got[0].Kind)
	require.Equal(t, float64(50), got[0].Percent)
	require.Equal(t, events.KindProgress, got[1].Kind)
	require.Equal(t, float64(100), got[1].Percent)
	require.Equal(t, events.KindCompleted, got[2].Kind)
	require.Equal(t, dest, got[2].Path)

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "hello world!", string(b))
	_, err = os.Stat(dest + PartSuffix)
	require.ErrorIs(t, err, os.ErrNotExist)

	s := j.Snapshot()
	require.Equal(t, media.StateCompleted, s.State)
	require.Equal(t, int64(12), s.Downloaded)
	require.Equal(t, int64(12), s.Total)
	require.False(t, s.FinishedAt.IsZero())
	require.True(t, p.Opened()[0].Closed())
}

func TestRun_UnknownTotalUsesFormatSizeThenFinishesAt100(t *testing.T) {
	p := mediatest.NewProvider()
	p.Streams["v1"] = mediatest.StreamSpec{Chunks: [][]byte{bytes.Repeat([]byte("a"), 10), bytes.Repeat([]byte("b"), 10)}}

	f := videoFormat
	f.Size = 40
	dest := filepath.Join(t.TempDir(), "x.mp4")
	j := New("job", media.Reference{URL: "u"}, f, dest, p)

	var c collector
	j.Run(context.Background(), c.emit)

	got := c.all()
	require.Len(t, got, 4)
	require.Equal(t, float64(25), got[0].Percent)
	require.Equal(t, float64(50), got[1].Percent)
	require.Equal(t, float64(100), got[2].Percent)
	require.Equal(t, int64(20), got[2].Total)
	require.Equal(t, events.KindCompleted, got[3].Kind)
}

func TestRun_UndersizedHintHoldsBelow100UntilEOF(t *testing.T) {
	chunks := make([][]byte, 10)
	for i := range chunks {
		chunks[i] = []byte("0123456789")
	}
	p := mediatest.NewProvider()
	p.Streams["v1"] = mediatest.StreamSpec{Chunks: chunks}

	f := videoFormat
	f.Size = 20
	j := New("job", media.Reference{URL: "u"}, f, filepath.Join(t.TempDir(), "x.mp4"), p)

	var c collector
	j.Run(context.Background(), c.emit)

	got := c.all()
	require.Len(t, got, 12)
	require.Equal(t, float64(50), got[0].Percent)
	for _, ev := range got[1:10] {
		require.Equal(t, events.KindProgress, ev.Kind)
		require.Equal(t, float64(99), ev.Percent)
		require.Equal(t, ev.Downloaded, ev.Total)
	}
	require.Equal(t, float64(100), got[10].Percent)
	require.Equal(t, int64(100), got[10].Total)
	require.Equal(t, events.KindCompleted, got[11].Kind)
	require.Equal(t, float64(100), j.Snapshot().Percent)
}

func TestRun_UnknownTotalWithoutHintReportsZeroUntilDone(t *testing.T) {
	p := mediatest.NewProvider()
	p.Streams["v1"] = mediatest.StreamSpec{Chunks: [][]byte{[]byte("abc")}}

	j := New("job", media.Reference{URL: "u"}, videoFormat, filepath.Join(t.TempDir(), "x.mp4"), p)
	var c collector
	j.Run(context.Background(), c.emit)

	got := c.all()
	require.Len(t, got, 3)
	require.Equal(t, float64(0), got[0].Percent)
	require.Equal(t, float64(100), got[1].Percent)
	require.Equal(t, events.KindCompleted, got[2].Kind)
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	chunks := make([][]byte, 20)
	for i := range chunks {
		chunks[i] = []byte("0123456789")
	}
	p := mediatest.NewProvider()
	p.Streams["v1"] = mediatest.StreamSpec{Chunks: chunks, Total: 200}

	j := New("job", media.Reference{URL: "u"}, videoFormat, filepath.Join(t.TempDir(), "x.mp4"), p)
	var c collector
	j.Run(context.Background(), c.emit)

	got := c.all()
	require.Equal(t, 1, terminalCount(got))
	require.True(t, got[len(got)-1].Terminal())
	var prevBytes int64
	prevPct := 0.0
	for _, ev := range got {
		require.GreaterOrEqual(t, ev.Downloaded, prevBytes)
		require.GreaterOrEqual(t, ev.Percent, prevPct)
		prevBytes, prevPct = ev.Downloaded, ev.Percent
	}
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name   string
		spec   mediatest.StreamSpec
		target error
	}{
		{name: "open error", spec: mediatest.StreamSpec{OpenErr: errors.New("403")}, target: media.ErrTransfer},
		{name: "read error", spec: mediatest.StreamSpec{Chunks: [][]byte{[]byte("ab")}, ReadErr: errors.New("reset")}, target: media.ErrTransfer},
		{name: "empty stream", spec: mediatest.StreamSpec{}, target: media.ErrTransfer},
		{name: "short stream", spec: mediatest.StreamSpec{Chunks: [][]byte{[]byte("ab")}, Total: 10}, target: media.ErrTransfer},
		{name: "overlong stream", spec: mediatest.StreamSpec{Chunks: [][]byte{[]byte("ab"), []byte("cdef")}, Total: 4}, target: media.ErrTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mediatest.NewProvider()
			p.Streams["v1"] = tt.spec
			dest := filepath.Join(t.TempDir(), "x.mp4")
			j := New("job", media.Reference{URL: "u"}, videoFormat, dest, p)

			var c collector
			j.Run(context.Background(), c.emit)

			got := c.all()
			require.Equal(t, 1, terminalCount(got))
			last := got[len(got)-1]
			require.Equal(t, events.KindFailed, last.Kind)
			require.ErrorIs(t, last.Err, tt.target)
			require.Equal(t, "Download failed.", last.Reason())

			_, err := os.Stat(dest)
			require.ErrorIs(t, err, os.ErrNotExist)
			_, err = os.Stat(dest + PartSuffix)
			require.ErrorIs(t, err, os.ErrNotExist)
			require.Equal(t, media.StateFailed, j.Snapshot().State)
		})
	}
}

func TestRun_UnwritableDestination(t *testing.T) {
	p := mediatest.NewProvider()
	p.Streams["v1"] = mediatest.StreamSpec{Chunks: [][]byte{[]byte("ab")}}

	dest := filepath.Join(t.TempDir(), "missing", "x.mp4")
	j := New("job", media.Reference{URL: "u"}, videoFormat, dest, p)
	var c collector
	j.Run(context.Background(), c.emit)

	got := c.all()
	require.Len(t, got, 1)
	require.ErrorIs(t, got[0].Err, media.ErrDestination)
	require.Empty(t, p.Opened())
}

func TestRun_CancelMidTransfer(t *testing.T) {
	p := mediatest.NewProvider()
	p.Streams["v1"] = mediatest.StreamSpec{Chunks: [][]byte{[]byte("partial")}, Total: 100, Block: true}

	dest := filepath.Join(t.TempDir(), "x.mp4")
	j := New("job", media.Reference{URL: "u"}, videoFormat, dest, p)

	ctx, cancel := context.WithCancelCause(context.Background())
	progressed := make(chan struct{}, 1)
	var c collector
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx, func(ev events.Event) {
			c.emit(ev)
			if ev.Kind == events.KindProgress {
				select {
				case progressed <- struct{}{}:
				default:
				}
			}
		})
	}()

	select {
	case <-progressed:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress")
	}
	cancel(media.ErrCancelled)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	got := c.all()
	require.Equal(t, 1, terminalCount(got))
	last := got[len(got)-1]
	require.Equal(t, events.KindFailed, last.Kind)
	require.ErrorIs(t, last.Err, media.ErrCancelled)
	require.Equal(t, "Download cancelled.", last.Reason())

	_, err := os.Stat(dest + PartSuffix)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.True(t, p.Opened()[0].Closed())
}

func TestAbort_PendingJobFailsOnce(t *testing.T) {
	p := mediatest.NewProvider()
	j := New("job", media.Reference{URL: "u"}, videoFormat, filepath.Join(t.TempDir(), "x.mp4"), p)

	var c collector
	j.Abort(media.ErrCancelled, c.emit)
	j.Abort(media.ErrCancelled, c.emit)
	j.Run(context.Background(), c.emit)

	got := c.all()
	require.Len(t, got, 1)
	require.ErrorIs(t, got[0].Err, media.ErrCancelled)
	require.Equal(t, media.StateFailed, j.Snapshot().State)
	require.Empty(t, p.Opened())
}

func TestCancelError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, CancelError(ctx), media.ErrCancelled)
	require.ErrorIs(t, CancelError(ctx), context.Canceled)

	ctx, cancelCause := context.WithCancelCause(context.Background())
	cancelCause(media.ErrCancelled)
	require.Equal(t, media.ErrCancelled, CancelError(ctx))
}
