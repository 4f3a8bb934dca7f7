package tasks

import (
	"fmt"

	"github.com/desertthunder/musixporter/internal/models"
)

// ProgressUpdate represents a progress event during an export run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase; zero when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchPlaylist Phase = iota
	FetchTracks
	SkipTrack
	MapTracks
	WriteExport
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchPlaylist:
		return "fetch_playlist"
	case FetchTracks:
		return "fetch_tracks"
	case SkipTrack:
		return "skip_track"
	case MapTracks:
		return "map_tracks"
	case WriteExport:
		return "write_export"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func fetchPlaylistUpdate(ref models.PlaylistRef) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching playlist %s...", ref),
	}
}

func foundPlaylistUpdate(pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found playlist: %s (%d tracks)", pl.Name, pl.TrackCount),
		Data:    pl,
	}
}

func fetchTrackUpdate(step, total int, tr *models.CanonicalTrack) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s", step, total, tr.PrimaryArtist(), tr.Title),
	}
}

func skipTrackUpdate(warn error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SkipTrack,
		Message: fmt.Sprintf("✗ %v", warn),
		Data:    warn,
	}
}

func mapTracksUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MapTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Matching on Tidal...", step, total),
	}
}

func writeExportUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteExport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Writing %s...", path),
	}
}

func completeUpdate(summary models.ExportSummary) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: "✓ " + summary.String(),
		Data:    summary,
	}
}
