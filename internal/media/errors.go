package media

import (
	"errors"
)

var (
	// ErrResolution indicates the provider could not extract metadata for a URL.
	ErrResolution = errors.New("resolution failed")
	// ErrNoMatchingFormat indicates no format of the requested kind exists.
	ErrNoMatchingFormat = errors.New("no matching format")
	// ErrDestination indicates the destination cannot be written.
	ErrDestination = errors.New("destination not writable")
	// ErrConflict indicates another active job is bound to the destination path.
	ErrConflict = errors.New("destination in use")
	// ErrTransfer indicates the byte stream or the sink failed mid-download.
	ErrTransfer = errors.New("transfer failed")
	// ErrCancelled indicates the job was cancelled.
	ErrCancelled = errors.New("cancelled")
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("job not found")
)

// UserMessage returns a message that a UI can show as-is.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrResolution):
		return "Could not find this video."
	case errors.Is(err, ErrNoMatchingFormat):
		return "This quality isn't available."
	case errors.Is(err, ErrDestination):
		return "Could not write to this folder."
	case errors.Is(err, ErrConflict):
		return "Another download is already writing to this file."
	case errors.Is(err, ErrCancelled):
		return "Download cancelled."
	case errors.Is(err, ErrTransfer):
		return "Download failed."
	case errors.Is(err, ErrJobNotFound):
		return "Download not found."
	default:
		return "Something went wrong."
	}
}
