package events

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	// MaxListenersPerJob limits the number of listeners attached to one job.
	MaxListenersPerJob = 64

	// coalesceAt is the mailbox backlog from which progress events replace
	// each other instead of queueing.
	coalesceAt = 16
)

// ErrTooManyListeners is returned by On when a job is at MaxListenersPerJob.
var ErrTooManyListeners = errors.New("too many listeners for job")

// Listener receives events. It runs on a goroutine owned by its subscription,
// so a slow listener delays only itself.
type Listener func(Event)

// Bus routes events to the listeners of each job. Listeners attached after an
// event was emitted do not see it.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
	nextID uint64
}

type topic struct {
	subs map[uint64]*mailbox
}

func NewBus() *Bus {
	return &Bus{
		topics: make(map[string]*topic),
	}
}

// On attaches l to jobID. The returned function detaches it; it may be called
// any number of times. Events already queued for l are discarded on detach.
func (b *Bus) On(jobID string, l Listener) (func(), error) {
	b.mu.Lock()
	t, ok := b.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[uint64]*mailbox)}
		b.topics[jobID] = t
	}
	if len(t.subs) >= MaxListenersPerJob {
		b.mu.Unlock()
		return func() {}, ErrTooManyListeners
	}
	b.nextID++
	id := b.nextID
	m := newMailbox(jobID, l)
	t.subs[id] = m
	b.mu.Unlock()

	go m.run()

	return func() {
		b.mu.Lock()
		if t, ok := b.topics[jobID]; ok {
			delete(t.subs, id)
			if len(t.subs) == 0 {
				delete(b.topics, jobID)
			}
		}
		b.mu.Unlock()
		m.stop()
	}, nil
}

// Emit queues ev for every listener currently attached to jobID.
func (b *Bus) Emit(jobID string, ev Event) {
	ev.JobID = jobID
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	t, ok := b.topics[jobID]
	if !ok {
		b.mu.Unlock()
		return
	}

	// Snapshot subs under lock, then publish without holding the lock.
	subs := make([]*mailbox, 0, len(t.subs))
	for _, m := range t.subs {
		subs = append(subs, m)
	}
	b.mu.Unlock()

	for _, m := range subs {
		m.push(ev)
	}
}

// Close detaches every listener of jobID after it has received what was
// already emitted.
func (b *Bus) Close(jobID string) {
	b.mu.Lock()
	t, ok := b.topics[jobID]
	delete(b.topics, jobID)
	b.mu.Unlock()
	if !ok {
		return
	}

	for _, m := range t.subs {
		m.drainAndStop()
	}
}

// Listeners returns the number of listeners attached to jobID.
func (b *Bus) Listeners(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[jobID]; ok {
		return len(t.subs)
	}
	return 0
}

// mailbox is the queue between Emit and one listener.
type mailbox struct {
	jobID string
	fn    Listener

	mu       sync.Mutex
	queue    []Event
	draining bool
	stopped  bool

	wake chan struct{}
	done chan struct{}
}

func newMailbox(jobID string, fn Listener) *mailbox {
	return &mailbox{
		jobID: jobID,
		fn:    fn,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// push appends ev. Once the backlog reaches coalesceAt, a progress event
// replaces a progress event still waiting at the tail; terminal events are
// always appended.
func (m *mailbox) push(ev Event) {
	m.mu.Lock()
	if m.stopped || m.draining {
		m.mu.Unlock()
		return
	}
	if n := len(m.queue); n >= coalesceAt && ev.Kind == KindProgress && m.queue[n-1].Kind == KindProgress {
		m.queue[n-1] = ev
	} else {
		m.queue = append(m.queue, ev)
	}
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) stop() {
	m.mu.Lock()
	m.stopped = true
	m.queue = nil
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) drainAndStop() {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	defer close(m.done)
	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		if len(m.queue) == 0 {
			draining := m.draining
			m.mu.Unlock()
			if draining {
				return
			}
			<-m.wake
			continue
		}
		ev := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.deliver(ev)
	}
}

func (m *mailbox) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("events: listener panicked", "job_id", m.jobID, "kind", ev.Kind.String(), "panic", r)
		}
	}()
	m.fn(ev)
}
