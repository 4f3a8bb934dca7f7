package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrPermissionDenied = fmt.Errorf("permission denied")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrUnknownSource      = fmt.Errorf("unknown source")

	// Pipeline errors
	ErrSkippedTrack     = fmt.Errorf("track skipped")
	ErrNoTracks         = fmt.Errorf("no exportable tracks")
	ErrExportWrite      = fmt.Errorf("export write failed")
	ErrSequenceConsumed = fmt.Errorf("track sequence already consumed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// NotFoundError reports that an upstream resource (playlist or track) does not exist.
type NotFoundError struct {
	Service  string
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %q not found", e.Service, e.Resource, e.ID)
}

// Is matches [ErrPlaylistNotFound] or [ErrTrackNotFound] depending on the resource.
func (e *NotFoundError) Is(target error) bool {
	switch target {
	case ErrPlaylistNotFound:
		return e.Resource == "playlist"
	case ErrTrackNotFound:
		return e.Resource == "track"
	}
	return false
}

// PermissionError reports an authentication or authorization failure (HTTP 401/403).
type PermissionError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *PermissionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: permission denied (status %d)", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: permission denied (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }

// UpstreamUnavailableError is returned once transient failures exhaust the retry budget.
type UpstreamUnavailableError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

func (e *UpstreamUnavailableError) Is(target error) bool { return target == ErrServiceUnavailable }

// SkippedTrackWarning describes a playlist entry that could not be normalized.
//
// It is non-fatal: the entry is dropped and the run continues.
type SkippedTrackWarning struct {
	Position int
	Field    string
	Reason   string
}

func (w *SkippedTrackWarning) Error() string {
	return fmt.Sprintf("track %d skipped: %s %s", w.Position, w.Field, w.Reason)
}

func (w *SkippedTrackWarning) Is(target error) bool { return target == ErrSkippedTrack }

// ExportWriteError wraps a failure to persist the export document.
type ExportWriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *ExportWriteError) Error() string {
	return fmt.Sprintf("export write error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ExportWriteError) Unwrap() error { return e.Err }

func (e *ExportWriteError) Is(target error) bool { return target == ErrExportWrite }

// HTTPStatusError carries a non-2xx upstream response that is not otherwise classified.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) Is(target error) bool { return target == ErrAPIRequest }

// IsFatal reports whether a per-track failure should abort the whole run:
// cancellation, an expired deadline or rejected credentials.
func IsFatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrPermissionDenied)
}
