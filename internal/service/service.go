// Package service is the UI-facing facade of the download engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"thirdcoast.systems/mediagrab/internal/events"
	"thirdcoast.systems/mediagrab/internal/jobs"
	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/resolver"
	"thirdcoast.systems/mediagrab/internal/transfer"
	"thirdcoast.systems/mediagrab/pkg/utils/filename"
)

// ErrPickerCancelled is returned when the user dismisses the folder picker.
var ErrPickerCancelled = errors.New("folder selection cancelled")

// FolderPicker asks the user for a destination folder.
type FolderPicker interface {
	PickFolder(ctx context.Context) (string, error)
}

// StaticFolder always picks the same folder.
type StaticFolder string

func (f StaticFolder) PickFolder(context.Context) (string, error) {
	if strings.TrimSpace(string(f)) == "" {
		return "", ErrPickerCancelled
	}
	return string(f), nil
}

type Service struct {
	resolver *resolver.Resolver
	jobs     *jobs.Manager
	picker   FolderPicker
}

func New(r *resolver.Resolver, m *jobs.Manager, picker FolderPicker) *Service {
	return &Service{resolver: r, jobs: m, picker: picker}
}

// FetchInfo resolves url to its title, thumbnail and formats.
func (s *Service) FetchInfo(ctx context.Context, url string) (*media.Info, error) {
	slog.Info("Fetching media info", "url", strings.TrimSpace(url))
	return s.resolver.Resolve(ctx, url)
}

// ChooseDestinationFolder returns the folder picked by the user, or
// ErrPickerCancelled.
func (s *Service) ChooseDestinationFolder(ctx context.Context) (string, error) {
	if s.picker == nil {
		return "", ErrPickerCancelled
	}
	return s.picker.PickFolder(ctx)
}

// StartDownload resolves url, selects the best format of kind and starts a
// job writing "<title>.<ext>" into folder. Precondition failures return an
// error and create no job; everything after that is reported through the
// job's events, to which listeners are attached before it starts.
func (s *Service) StartDownload(ctx context.Context, url string, kind media.Kind, folder string, listeners ...events.Listener) (jobs.Handle, error) {
	if kind != media.KindVideo && kind != media.KindAudio {
		return jobs.Handle{}, fmt.Errorf("%w: unknown kind %d", media.ErrNoMatchingFormat, int(kind))
	}
	dir, err := checkFolder(folder)
	if err != nil {
		return jobs.Handle{}, err
	}

	info, err := s.resolver.Resolve(ctx, url)
	if err != nil {
		return jobs.Handle{}, err
	}
	format, err := resolver.SelectFormat(info.Formats, kind)
	if err != nil {
		return jobs.Handle{}, err
	}

	dest := filepath.Join(dir, filename.ForTitle(info.Title, format.Ext()))
	if err := checkDestination(dest); err != nil {
		return jobs.Handle{}, err
	}
	return s.jobs.Submit(ctx, jobs.Request{
		Ref:         media.Reference{URL: strings.TrimSpace(url)},
		Format:      format,
		Destination: dest,
		Listeners:   listeners,
	})
}

func (s *Service) Cancel(id string) error {
	return s.jobs.Cancel(id)
}

func (s *Service) Subscribe(id string, l events.Listener) (func(), error) {
	return s.jobs.Subscribe(id, l)
}

func (s *Service) Get(id string) (transfer.Snapshot, error) {
	return s.jobs.Get(id)
}

func (s *Service) List() []transfer.Snapshot {
	return s.jobs.List()
}

func (s *Service) Acknowledge(id string) (bool, error) {
	return s.jobs.Acknowledge(id)
}

// checkFolder requires an existing, writable directory.
func checkFolder(folder string) (string, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return "", fmt.Errorf("%w: no folder selected", media.ErrDestination)
	}
	dir, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("%w: %w", media.ErrDestination, err)
	}
	st, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", media.ErrDestination, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", media.ErrDestination, dir)
	}

	probe, err := os.CreateTemp(dir, ".mediagrab-probe-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", media.ErrDestination, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return dir, nil
}

// checkDestination rejects a destination path that exists as a directory. An
// existing regular file is overwritten when the job completes.
func checkDestination(dest string) error {
	st, err := os.Stat(dest)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", media.ErrDestination, err)
	case st.IsDir():
		return fmt.Errorf("%w: %s is a directory", media.ErrDestination, dest)
	}
	return nil
}
