// Package transfer implements a single download: provider stream to a part
// file, renamed onto the destination when the stream completes.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"thirdcoast.systems/mediagrab/internal/events"
	"thirdcoast.systems/mediagrab/internal/media"
)

const (
	// PartSuffix is appended to the destination while bytes are being written.
	PartSuffix = ".part"

	copyBufferSize = 32 * 1024

	// hintedMaxPercent caps progress while the total is only the format's
	// declared size, which providers often underestimate.
	hintedMaxPercent = 99
)

// Snapshot is a point-in-time copy of a job.
type Snapshot struct {
	ID          string          `json:"id"`
	Ref         media.Reference `json:"ref"`
	Format      media.Format    `json:"format"`
	Destination string          `json:"destination"`
	Downloaded  int64           `json:"downloaded"`
	Total       int64           `json:"total"`
	Percent     float64         `json:"percent"`
	State       media.State     `json:"state"`
	Err         error           `json:"-"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	FinishedAt  time.Time       `json:"finished_at,omitzero"`
}

// Job downloads one format of one media reference to one destination path.
// Its state only moves forward and it reports exactly one terminal event.
type Job struct {
	id       string
	ref      media.Reference
	format   media.Format
	dest     string
	provider media.Provider

	mu         sync.Mutex
	state      media.State
	downloaded int64
	total      int64
	hinted     bool
	err        error
	createdAt  time.Time
	updatedAt  time.Time
	finishedAt time.Time

	finishOnce sync.Once
}

func New(id string, ref media.Reference, format media.Format, dest string, provider media.Provider) *Job {
	now := time.Now()
	return &Job{
		id:        id,
		ref:       ref,
		format:    format,
		dest:      dest,
		provider:  provider,
		state:     media.StatePending,
		createdAt: now,
		updatedAt: now,
	}
}

func (j *Job) ID() string { return j.id }
func (j *Job) Destination() string { return j.dest }

// Snapshot returns the current state of the job.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		ID:          j.id,
		Ref:         j.ref,
		Format:      j.format,
		Destination: j.dest,
		Downloaded:  j.downloaded,
		Total:       j.total,
		Percent:     j.percentLocked(),
		State:       j.state,
		Err:         j.err,
		CreatedAt:   j.createdAt,
		UpdatedAt:   j.updatedAt,
		FinishedAt:  j.finishedAt,
	}
	if j.err != nil {
		s.Error = media.UserMessage(j.err)
	}
	return s
}

// Abort fails a job that never started. It has no effect once Run has begun.
func (j *Job) Abort(cause error, emit func(events.Event)) {
	j.mu.Lock()
	if j.state != media.StatePending {
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()
	j.fail(cause, emit)
}

// Run performs the transfer and blocks until the job is terminal. emit
// receives progress events in order followed by exactly one terminal event;
// by then the part file is gone and the sink is closed.
func (j *Job) Run(ctx context.Context, emit func(events.Event)) {
	j.mu.Lock()
	if j.state != media.StatePending {
		j.mu.Unlock()
		return
	}
	j.state = media.StateInProgress
	if j.format.Size > 0 {
		j.total = j.format.Size
		j.hinted = true
	}
	j.updatedAt = time.Now()
	j.mu.Unlock()

	slog.Info("Transfer started", "job_id", j.id, "url", j.ref.URL, "format", j.format.ID, "dest", j.dest)

	if err := ctx.Err(); err != nil {
		j.fail(CancelError(ctx), emit)
		return
	}

	part := j.dest + PartSuffix
	sink, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		j.fail(fmt.Errorf("%w: %w", media.ErrDestination, err), emit)
		return
	}

	written, err := j.copy(ctx, sink, emit)
	closeErr := sink.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("%w: close %s: %w", media.ErrDestination, part, closeErr)
	}
	if err == nil {
		if rerr := os.Rename(part, j.dest); rerr != nil {
			err = fmt.Errorf("%w: %w", media.ErrDestination, rerr)
		}
	}
	if err != nil {
		if rmErr := os.Remove(part); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("Failed to remove part file", "job_id", j.id, "path", part, "error", rmErr)
		}
		j.fail(err, emit)
		return
	}

	j.complete(written, emit)
}

// copy pipes the provider stream into sink, reporting progress per chunk.
func (j *Job) copy(ctx context.Context, sink io.Writer, emit func(events.Event)) (int64, error) {
	stream, streamTotal, err := j.provider.OpenFormatStream(ctx, j.ref.URL, j.format.ID)
	if err != nil {
		if ctx.Err() != nil {
			return 0, CancelError(ctx)
		}
		return 0, fmt.Errorf("%w: open stream: %w", media.ErrTransfer, err)
	}
	defer stream.Close()

	// Unblock a pending Read when the job is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	exact := streamTotal > 0
	if exact {
		j.mu.Lock()
		j.total = streamTotal
		j.hinted = false
		j.mu.Unlock()
	}

	var written int64
	lastPercent := -1.0
	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				if ctx.Err() != nil {
					return written, CancelError(ctx)
				}
				return written, fmt.Errorf("%w: write: %w", media.ErrDestination, werr)
			}
			written += int64(n)
			if exact && written > streamTotal {
				return written, fmt.Errorf("%w: stream exceeded its declared %d bytes", media.ErrTransfer, streamTotal)
			}
			lastPercent = j.progress(written, emit)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return written, CancelError(ctx)
			}
			return written, fmt.Errorf("%w: read: %w", media.ErrTransfer, rerr)
		}
		if ctx.Err() != nil {
			return written, CancelError(ctx)
		}
	}

	if ctx.Err() != nil {
		return written, CancelError(ctx)
	}
	if written == 0 {
		return 0, fmt.Errorf("%w: stream was empty", media.ErrTransfer)
	}
	if exact && written < streamTotal {
		return written, fmt.Errorf("%w: stream ended after %d of %d bytes", media.ErrTransfer, written, streamTotal)
	}

	j.mu.Lock()
	j.total = written
	j.hinted = false
	j.mu.Unlock()
	if lastPercent < 100 {
		j.progress(written, emit)
	}
	return written, nil
}

func (j *Job) progress(downloaded int64, emit func(events.Event)) float64 {
	j.mu.Lock()
	if downloaded > j.downloaded {
		j.downloaded = downloaded
	}
	// Only a size hint can be overtaken; exact totals fail in copy instead.
	if j.downloaded > j.total && j.total > 0 {
		j.total = j.downloaded
	}
	ev := events.Event{
		JobID:      j.id,
		Kind:       events.KindProgress,
		Downloaded: j.downloaded,
		Total:      j.total,
		Percent:    j.percentLocked(),
	}
	j.updatedAt = time.Now()
	j.mu.Unlock()

	emit(ev)
	return ev.Percent
}

func (j *Job) complete(written int64, emit func(events.Event)) {
	j.finishOnce.Do(func() {
		now := time.Now()
		j.mu.Lock()
		j.state = media.StateCompleted
		j.downloaded = written
		j.total = written
		j.updatedAt = now
		j.finishedAt = now
		j.mu.Unlock()

		slog.Info("Transfer completed", "job_id", j.id, "dest", j.dest, "size", humanize.Bytes(uint64(written)))
		emit(events.Event{
			JobID:      j.id,
			Kind:       events.KindCompleted,
			Downloaded: written,
			Total:      written,
			Percent:    100,
			Path:       j.dest,
			At:         now,
		})
	})
}

func (j *Job) fail(err error, emit func(events.Event)) {
	j.finishOnce.Do(func() {
		now := time.Now()
		j.mu.Lock()
		j.state = media.StateFailed
		j.err = err
		j.updatedAt = now
		j.finishedAt = now
		ev := events.Event{
			JobID:      j.id,
			Kind:       events.KindFailed,
			Downloaded: j.downloaded,
			Total:      j.total,
			Percent:    j.percentLocked(),
			Err:        err,
			At:         now,
		}
		j.mu.Unlock()

		if errors.Is(err, media.ErrCancelled) {
			slog.Info("Transfer cancelled", "job_id", j.id, "dest", j.dest)
		} else {
			slog.Error("Transfer failed", "job_id", j.id, "dest", j.dest, "error", err)
		}
		emit(ev)
	})
}

// percentLocked is the completion percentage. It only reaches 100 against an
// exact total. j.mu must be held.
func (j *Job) percentLocked() float64 {
	p := events.Percent(j.downloaded, j.total)
	if j.hinted {
		return min(p, hintedMaxPercent)
	}
	return p
}

// CancelError is the failure cause for a job whose context ended.
func CancelError(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return media.ErrCancelled
	case errors.Is(cause, media.ErrCancelled):
		return cause
	default:
		return fmt.Errorf("%w: %w", media.ErrCancelled, cause)
	}
}
