package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/mediagrab/internal/media"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
	once   sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.Terminal() {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) wait(t *testing.T) []Event {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
	return r.snapshot()
}

func TestBus_DeliversInOrderWithTerminalLast(t *testing.T) {
	b := NewBus()
	r := newRecorder()
	_, err := b.On("job", r.listen)
	require.NoError(t, err)

	b.Emit("job", Event{Kind: KindProgress, Percent: 10})
	b.Emit("job", Event{Kind: KindProgress, Percent: 20})
	b.Emit("job", Event{Kind: KindCompleted, Path: "/tmp/x.mp4"})
	b.Close("job")

	got := r.wait(t)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	require.Equal(t, KindCompleted, last.Kind)
	require.Equal(t, "job", last.JobID)
	require.False(t, last.At.IsZero())

	prev := -1.0
	for _, ev := range got[:len(got)-1] {
		require.Equal(t, KindProgress, ev.Kind)
		require.GreaterOrEqual(t, ev.Percent, prev)
		prev = ev.Percent
	}
}

func TestBus_SlowListenerCoalescesProgressButKeepsTerminal(t *testing.T) {
	b := NewBus()
	release := make(chan struct{})
	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})

	_, err := b.On("job", func(ev Event) {
		<-release
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		if ev.Terminal() {
			close(done)
		}
	})
	require.NoError(t, err)

	fast := newRecorder()
	_, err = b.On("job", fast.listen)
	require.NoError(t, err)

	for i := 1; i <= 100; i++ {
		b.Emit("job", Event{Kind: KindProgress, Percent: float64(i)})
	}
	b.Emit("job", Event{Kind: KindFailed, Err: media.ErrCancelled})

	// The fast listener is not held back by the blocked one.
	fastEvents := fast.wait(t)
	require.Equal(t, KindFailed, fastEvents[len(fastEvents)-1].Kind)

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("slow listener never saw terminal event")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Less(t, len(got), 102)
	require.Equal(t, KindFailed, got[len(got)-1].Kind)
	require.Equal(t, "Download cancelled.", got[len(got)-1].Reason())
	require.Equal(t, float64(100), got[len(got)-2].Percent)
}

func TestBus_UnsubscribeIsIdempotentAndStopsDelivery(t *testing.T) {
	b := NewBus()
	r := newRecorder()
	off, err := b.On("job", r.listen)
	require.NoError(t, err)
	require.Equal(t, 1, b.Listeners("job"))

	off()
	off()
	require.Equal(t, 0, b.Listeners("job"))

	b.Emit("job", Event{Kind: KindCompleted})
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, r.snapshot())
}

func TestBus_LateListenerGetsNoReplay(t *testing.T) {
	b := NewBus()
	early := newRecorder()
	_, err := b.On("job", early.listen)
	require.NoError(t, err)

	b.Emit("job", Event{Kind: KindProgress, Percent: 40})

	late := newRecorder()
	_, err = b.On("job", late.listen)
	require.NoError(t, err)

	b.Emit("job", Event{Kind: KindCompleted})
	b.Close("job")

	got := late.wait(t)
	require.Len(t, got, 1)
	require.Equal(t, KindCompleted, got[0].Kind)
	require.Len(t, early.wait(t), 2)
}

func TestBus_ListenerPanicDoesNotStopDelivery(t *testing.T) {
	b := NewBus()
	r := newRecorder()
	_, err := b.On("job", func(ev Event) {
		if ev.Kind == KindProgress {
			panic("boom")
		}
		r.listen(ev)
	})
	require.NoError(t, err)

	b.Emit("job", Event{Kind: KindProgress})
	b.Emit("job", Event{Kind: KindFailed, Err: errors.New("x")})
	require.Len(t, r.wait(t), 1)
}

func TestBus_ListenerLimit(t *testing.T) {
	b := NewBus()
	for i := 0; i < MaxListenersPerJob; i++ {
		_, err := b.On("job", func(Event) {})
		require.NoError(t, err)
	}
	_, err := b.On("job", func(Event) {})
	require.ErrorIs(t, err, ErrTooManyListeners)
	b.Close("job")
	require.Equal(t, 0, b.Listeners("job"))
}

func TestPercent(t *testing.T) {
	require.Equal(t, float64(0), Percent(10, 0))
	require.Equal(t, float64(0), Percent(0, 10))
	require.Equal(t, float64(50), Percent(5, 10))
	require.Equal(t, float64(100), Percent(12, 10))
}
