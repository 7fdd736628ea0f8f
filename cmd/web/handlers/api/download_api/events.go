package download_api

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/starfederation/datastar-go/datastar"

	"thirdcoast.systems/mediagrab/cmd/web/handlers/common"
	"thirdcoast.systems/mediagrab/internal/events"
	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/transfer"
)

// streamTimeout bounds a single SSE connection.
const streamTimeout = 30 * time.Minute

// jobSignals is the datastar signal payload for one job.
type jobSignals struct {
	JobID   string  `json:"jobId"`
	State   string  `json:"state"`
	Percent float64 `json:"percent"`
	Path    string  `json:"path,omitempty"`
	Error   string  `json:"error,omitempty"`
}

func snapshotSignals(s transfer.Snapshot) jobSignals {
	sig := jobSignals{JobID: s.ID, State: s.State.String(), Percent: s.Percent, Error: s.Error}
	if s.State == media.StateCompleted {
		sig.Path = s.Destination
	}
	return sig
}

func eventSignals(ev events.Event) jobSignals {
	sig := jobSignals{JobID: ev.JobID, Percent: ev.Percent}
	switch ev.Kind {
	case events.KindCompleted:
		sig.State = media.StateCompleted.String()
		sig.Path = ev.Path
	case events.KindFailed:
		sig.State = media.StateFailed.String()
		sig.Error = ev.Reason()
	default:
		sig.State = media.StateInProgress.String()
	}
	return sig
}

// HandleEvents streams job progress as datastar signal patches until the job
// is terminal or the client goes away.
func HandleEvents(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		ctx := c.Request().Context()
		done := make(chan struct{})
		defer close(done)

		// Subscribe before reading the snapshot so no terminal event can fall
		// between the two.
		evCh := make(chan events.Event, 16)
		unsubscribe, err := svc.Subscribe(id, func(ev events.Event) {
			select {
			case evCh <- ev:
			case <-done:
			}
		})
		if err != nil {
			return common.FromError(err)
		}
		defer unsubscribe()

		snap, err := svc.Get(id)
		if err != nil {
			return common.FromError(err)
		}

		common.SetSSEHeaders(c)
		sse := datastar.NewSSE(c.Response().Writer, c.Request())

		if err := patch(sse, snapshotSignals(snap)); err != nil {
			slog.Error("failed to send SSE patch", "error", err, "job_id", id)
			return nil
		}
		if snap.State.IsTerminal() {
			return nil
		}

		timeout := time.NewTimer(streamTimeout)
		defer timeout.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Debug("SSE connection closed by client", "job_id", id)
				return nil
			case <-timeout.C:
				slog.Warn("SSE connection timeout", "job_id", id)
				return nil
			case ev := <-evCh:
				if err := patch(sse, eventSignals(ev)); err != nil {
					slog.Error("failed to send SSE patch", "error", err, "job_id", id)
					return nil
				}
				if ev.Terminal() {
					slog.Debug("Job finished, closing SSE connection", "job_id", id, "kind", ev.Kind.String())
					return nil
				}
			}
		}
	}
}

func patch(sse *datastar.ServerSentEventGenerator, sig jobSignals) error {
	b, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return sse.PatchSignals(b)
}
