// Package jobs tracks transfer jobs: admission, path locking, concurrency,
// cancellation and event fan-out.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"thirdcoast.systems/mediagrab/internal/events"
	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/transfer"
)

const (
	DefaultMaxConcurrent = 3
	minReapInterval      = time.Second
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("job manager is shut down")

type Options struct {
	// MaxConcurrent caps running transfers; further jobs wait in Pending.
	MaxConcurrent int
	// ProgressInterval is the minimum gap between forwarded progress events
	// of one job. Zero forwards every event.
	ProgressInterval time.Duration
	// Retention is how long a terminal job stays visible. Zero keeps it until
	// acknowledged.
	Retention time.Duration
}

// Request describes a download to start.
type Request struct {
	Ref         media.Reference
	Format      media.Format
	Destination string
	// Listeners are attached before the job starts, so they see every event.
	Listeners []events.Listener
}

// Handle identifies a submitted job.
type Handle struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
}

type Manager struct {
	provider media.Provider
	bus      *events.Bus
	opts     Options
	sem      *semaphore.Weighted

	mu     sync.Mutex
	jobs   map[string]*entry
	paths  map[string]string
	closed bool
	wg     sync.WaitGroup
}

type entry struct {
	job     *transfer.Job
	pathKey string
	cancel  context.CancelCauseFunc
	limiter *rate.Limiter

	terminal   bool
	finishedAt time.Time
	done       chan struct{}
}

func New(provider media.Provider, bus *events.Bus, opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Manager{
		provider: provider,
		bus:      bus,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		jobs:     make(map[string]*entry),
		paths:    make(map[string]string),
	}
}

// Submit registers a job and starts it in the background. It fails with
// media.ErrConflict when an active job already writes to the same path. The
// job outlives ctx; use Cancel to stop it.
func (m *Manager) Submit(ctx context.Context, req Request) (Handle, error) {
	key, err := pathKey(req.Destination)
	if err != nil {
		return Handle{}, err
	}

	id := uuid.NewString()
	jobCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	e := &entry{
		job:     transfer.New(id, req.Ref, req.Format, key, m.provider),
		pathKey: key,
		cancel:  cancel,
		limiter: newLimiter(m.opts.ProgressInterval),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel(ErrClosed)
		return Handle{}, ErrClosed
	}
	if owner, ok := m.paths[key]; ok {
		m.mu.Unlock()
		cancel(nil)
		return Handle{}, fmt.Errorf("%w: %s is being written by job %s", media.ErrConflict, key, owner)
	}
	m.jobs[id] = e
	m.paths[key] = id
	for _, l := range req.Listeners {
		if _, err := m.bus.On(id, l); err != nil {
			slog.Warn("Dropping job listener", "job_id", id, "error", err)
		}
	}
	m.wg.Add(1)
	m.mu.Unlock()

	slog.Info("Job submitted", "job_id", id, "url", req.Ref.URL, "format", req.Format.ID, "kind", req.Format.Kind.String(), "dest", key)

	go m.run(jobCtx, e)
	return Handle{ID: id, Destination: key}, nil
}

func (m *Manager) run(ctx context.Context, e *entry) {
	defer m.wg.Done()
	emit := func(ev events.Event) { m.dispatch(e, ev) }

	if err := m.sem.Acquire(ctx, 1); err != nil {
		e.job.Abort(transfer.CancelError(ctx), emit)
		return
	}
	defer m.sem.Release(1)

	e.job.Run(ctx, emit)
}

// dispatch forwards a job event to the bus. Terminal events release the path
// lock and the listeners in the same critical section that marks the entry
// terminal, so no subscription can observe a half-finished job.
func (m *Manager) dispatch(e *entry, ev events.Event) {
	id := e.job.ID()
	if !ev.Terminal() {
		if ev.Percent < 100 && !e.limiter.Allow() {
			return
		}
		m.bus.Emit(id, ev)
		return
	}

	m.mu.Lock()
	if m.paths[e.pathKey] == id {
		delete(m.paths, e.pathKey)
	}
	e.terminal = true
	e.finishedAt = ev.At
	if e.finishedAt.IsZero() {
		e.finishedAt = time.Now()
	}
	m.bus.Emit(id, ev)
	m.bus.Close(id)
	m.mu.Unlock()

	e.cancel(nil)
	close(e.done)
}

// Cancel stops a job. Cancelling a terminal, acknowledged or unknown job does
// nothing.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		slog.Debug("Cancel for unknown job ignored", "job_id", id)
		return nil
	}

	e.cancel(media.ErrCancelled)
	return nil
}

// Subscribe attaches l to a job. A terminal job has no further events, so
// the returned unsubscribe is a no-op; use Get to read its outcome.
func (m *Manager) Subscribe(id string, l events.Listener) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", media.ErrJobNotFound, id)
	}
	if e.terminal {
		return func() {}, nil
	}
	return m.bus.On(id, l)
}

// Done returns a channel closed once the job is terminal.
func (m *Manager) Done(id string) (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", media.ErrJobNotFound, id)
	}
	return e.done, nil
}

func (m *Manager) Get(id string) (transfer.Snapshot, error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return transfer.Snapshot{}, fmt.Errorf("%w: %s", media.ErrJobNotFound, id)
	}
	return e.job.Snapshot(), nil
}

// List returns all tracked jobs, oldest first.
func (m *Manager) List() []transfer.Snapshot {
	m.mu.Lock()
	out := make([]transfer.Snapshot, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job.Snapshot())
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b transfer.Snapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Acknowledge forgets a terminal job. It returns false for a job that is
// still running.
func (m *Manager) Acknowledge(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", media.ErrJobNotFound, id)
	}
	if !e.terminal {
		return false, nil
	}
	delete(m.jobs, id)
	return true, nil
}

// Reap forgets terminal jobs that finished more than Retention before now.
func (m *Manager) Reap(now time.Time) int {
	if m.opts.Retention <= 0 {
		return 0
	}
	cutoff := now.Add(-m.opts.Retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.jobs {
		if e.terminal && e.finishedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n
}

// Run reaps expired jobs until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if m.opts.Retention <= 0 {
		<-ctx.Done()
		return nil
	}

	interval := max(m.opts.Retention/2, minReapInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := m.Reap(now); n > 0 {
				slog.Debug("Reaped finished jobs", "count", n)
			}
		}
	}
}

// Shutdown rejects new jobs, cancels running ones and waits until every job
// has emitted its terminal event or ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	active := make([]*entry, 0, len(m.jobs))
	for _, e := range m.jobs {
		if !e.terminal {
			active = append(active, e)
		}
	}
	m.mu.Unlock()

	slog.Info("Shutting down job manager", "active", len(active))
	for _, e := range active {
		e.cancel(fmt.Errorf("%w: shutting down", media.ErrCancelled))
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func pathKey(dest string) (string, error) {
	if strings.TrimSpace(dest) == "" {
		return "", fmt.Errorf("%w: empty destination path", media.ErrDestination)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("%w: %w", media.ErrDestination, err)
	}
	return filepath.Clean(abs), nil
}
