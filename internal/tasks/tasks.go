package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musixporter/internal/formatter"
	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/services"
	"github.com/desertthunder/musixporter/internal/shared"
	"github.com/desertthunder/musixporter/internal/tidal"
)

// Mapper resolves canonical tracks to Tidal IDs. [*tidal.Mapper] implements it.
type Mapper interface {
	MapAll(ctx context.Context, source string, tracks []models.CanonicalTrack, progress func(done, total int)) (*tidal.MapResult, error)
}

// HistoryStore records finished exports. [*repositories.ExportRepository] implements it.
type HistoryStore interface {
	Create(ctx context.Context, rec *models.ExportRecord) error
}

// ExportOpts configures a single run.
type ExportOpts struct {
	OutputPath string // explicit file path; overrides OutputDir
	OutputDir  string // directory for the default timestamped filename
	Prefetch   bool   // overlap the next page fetch with normalization
}

// ExportResult contains all data from a finished export.
type ExportResult struct {
	Document   *models.ExportDocument
	Summary    models.ExportSummary
	Skipped    []*shared.SkippedTrackWarning
	Misses     []tidal.Miss
	MissedPath string // empty when every track was matched or mapping was off
	Pages      int
}

// ExportEngine runs the fetch → normalize → map → write pipeline.
type ExportEngine struct {
	mapper  Mapper
	history HistoryStore
	logger  *log.Logger
	now     func() time.Time
}

// NewExportEngine creates an engine. mapper and history may be nil to disable
// Tidal mapping and run history respectively.
func NewExportEngine(mapper Mapper, history HistoryStore, logger *log.Logger) *ExportEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ExportEngine{mapper: mapper, history: history, logger: logger, now: time.Now}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *ExportEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run exports the playlist identified by ref from src.
//
// Nothing is written when the playlist cannot be fetched, when no entry survives
// normalization (or mapping), or when ctx is cancelled before the final rename.
func (e *ExportEngine) Run(ctx context.Context, progress chan<- ProgressUpdate, src services.Source, ref models.PlaylistRef, opts ExportOpts) (*ExportResult, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: source not initialized", shared.ErrServiceUnavailable)
	}
	logger := e.logger.With("source", src.Name(), "playlist", ref.ID)

	e.sendProgress(progress, fetchPlaylistUpdate(ref))
	playlist, err := src.Playlist(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	e.sendProgress(progress, foundPlaylistUpdate(playlist))
	logger.Info("exporting playlist", "name", playlist.Name, "tracks", playlist.TrackCount)

	result := &ExportResult{}
	tracks, err := e.collect(ctx, progress, src, ref, playlist.TrackCount, opts.Prefetch, result)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: all %d entries were skipped", shared.ErrNoTracks, len(result.Skipped))
	}

	now := e.now()
	path := opts.OutputPath
	if path == "" {
		path = filepath.Join(opts.OutputDir, formatter.DefaultFilename(now))
	}

	exportTracks, err := e.mapTracks(ctx, progress, src.Name(), tracks, path, result)
	if err != nil {
		return nil, err
	}
	if len(exportTracks) == 0 {
		return nil, fmt.Errorf("%w: none of %d tracks matched on Tidal", shared.ErrNoTracks, len(tracks))
	}

	doc := &models.ExportDocument{
		Source:     src.Name(),
		ExportedAt: now,
		Playlist:   *playlist,
		Tracks:     exportTracks,
	}

	e.sendProgress(progress, writeExportUpdate(path))
	if err := formatter.Write(ctx, formatter.Build(doc), path); err != nil {
		return nil, err
	}

	result.Document = doc
	result.Summary = models.ExportSummary{
		Exported:   len(exportTracks),
		Skipped:    len(result.Skipped),
		Unmatched:  len(result.Misses),
		OutputPath: path,
	}
	logger.Info("export written", "path", path, "exported", result.Summary.Exported, "skipped", result.Summary.Skipped)

	if e.history != nil {
		if err := e.history.Create(ctx, models.NewExportRecord(doc, result.Summary)); err != nil {
			logger.Warn("failed to record export history", "err", err)
		}
	}

	e.sendProgress(progress, completeUpdate(result.Summary))
	return result, nil
}

// collect drains the page sequence, normalizing entries in upstream order.
func (e *ExportEngine) collect(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	src services.Source,
	ref models.PlaylistRef,
	total int,
	prefetch bool,
	result *ExportResult,
) ([]models.CanonicalTrack, error) {
	fm := src.FieldMap()
	pager := services.Tracks(src, ref, prefetch)

	var tracks []models.CanonicalTrack
	for entry, err := range pager.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tracks: %w", err)
		}

		track, warn := fm.Normalize(entry)
		if warn != nil {
			e.logger.Warn("skipping entry", "position", warn.Position, "field", warn.Field, "reason", warn.Reason)
			result.Skipped = append(result.Skipped, warn)
			e.sendProgress(progress, skipTrackUpdate(warn))
			continue
		}

		tracks = append(tracks, track)
		e.sendProgress(progress, fetchTrackUpdate(entry.Position, max(total, entry.Position), &track))
	}

	result.Pages = pager.Pages()
	return tracks, nil
}

// mapTracks resolves tracks on Tidal when a mapper is configured and writes the
// report of misses next to path.
func (e *ExportEngine) mapTracks(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	source string,
	tracks []models.CanonicalTrack,
	path string,
	result *ExportResult,
) ([]models.ExportTrack, error) {
	if e.mapper == nil {
		out := make([]models.ExportTrack, len(tracks))
		for i, t := range tracks {
			out[i] = models.ExportTrack{Track: t}
		}
		return out, nil
	}

	mapped, err := e.mapper.MapAll(ctx, source, tracks, func(done, total int) {
		e.sendProgress(progress, mapTracksUpdate(done, total))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to map tracks: %w", err)
	}

	result.Misses = mapped.Misses
	if len(mapped.Misses) > 0 {
		missedPath := filepath.Join(filepath.Dir(path), formatter.MissedFilename)
		if err := formatter.WriteJSON(ctx, missedPath, mapped.Misses); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			e.logger.Warn("failed to write missed tracks report", "path", missedPath, "err", err)
		} else {
			result.MissedPath = missedPath
			e.logger.Warn("some tracks were not found on Tidal", "missed", len(mapped.Misses), "report", missedPath)
		}
	}
	return mapped.Tracks, nil
}
