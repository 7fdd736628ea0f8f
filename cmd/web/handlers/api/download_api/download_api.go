// Package download_api provides the media info and download job handlers.
package download_api

import (
	"context"

	"thirdcoast.systems/mediagrab/internal/events"
	"thirdcoast.systems/mediagrab/internal/jobs"
	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/transfer"
)

// Service is the engine surface the handlers use.
type Service interface {
	FetchInfo(ctx context.Context, url string) (*media.Info, error)
	ChooseDestinationFolder(ctx context.Context) (string, error)
	StartDownload(ctx context.Context, url string, kind media.Kind, folder string, listeners ...events.Listener) (jobs.Handle, error)
	Cancel(id string) error
	Subscribe(id string, l events.Listener) (func(), error)
	Get(id string) (transfer.Snapshot, error)
	List() []transfer.Snapshot
	Acknowledge(id string) (bool, error)
}
