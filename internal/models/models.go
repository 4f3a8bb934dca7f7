package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for persisted records.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// ExportRecord is the history entry written after a successful export.
type ExportRecord struct {
	id           string
	Sequence     int
	Source       string
	PlaylistID   string
	PlaylistName string
	OutputPath   string
	Exported     int
	Skipped      int
	Unmatched    int
	createdAt    time.Time
}

// NewExportRecord builds a record for a finished run. The ID is assigned on insert.
func NewExportRecord(doc *ExportDocument, summary ExportSummary) *ExportRecord {
	return &ExportRecord{
		Source:       doc.Source,
		PlaylistID:   doc.Playlist.ID,
		PlaylistName: doc.Playlist.Name,
		OutputPath:   summary.OutputPath,
		Exported:     summary.Exported,
		Skipped:      summary.Skipped,
		Unmatched:    summary.Unmatched,
		createdAt:    doc.ExportedAt,
	}
}

// RestoreExportRecord rebuilds a record read back from storage.
func RestoreExportRecord(id string, createdAt time.Time, r ExportRecord) *ExportRecord {
	r.id = id
	r.createdAt = createdAt
	return &r
}

func (r *ExportRecord) ID() string { return r.id }

func (r *ExportRecord) SetID(id string) { r.id = id }

func (r *ExportRecord) CreatedAt() time.Time { return r.createdAt }

func (r *ExportRecord) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("source is required")
	}
	if r.PlaylistID == "" {
		return fmt.Errorf("playlist id is required")
	}
	if r.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if r.Exported < 0 || r.Skipped < 0 || r.Unmatched < 0 {
		return fmt.Errorf("counts must not be negative")
	}
	return nil
}

// MatchRecord is a cached Tidal match for one source track.
type MatchRecord struct {
	Source    string
	SourceID  string
	ISRC      string
	Match     Match
	createdAt time.Time
}

// NewMatchRecord creates a record stamped with the current time.
func NewMatchRecord(source, sourceID, isrc string, m Match) *MatchRecord {
	return &MatchRecord{Source: source, SourceID: sourceID, ISRC: isrc, Match: m, createdAt: time.Now().UTC()}
}

// RestoreMatchRecord rebuilds a record read back from storage.
func RestoreMatchRecord(createdAt time.Time, r MatchRecord) *MatchRecord {
	r.createdAt = createdAt
	return &r
}

func (r *MatchRecord) ID() string { return r.Source + ":" + r.SourceID }

func (r *MatchRecord) CreatedAt() time.Time { return r.createdAt }

func (r *MatchRecord) Validate() error {
	if r.Source == "" || r.SourceID == "" {
		return fmt.Errorf("source and source id are required")
	}
	if r.Match.ID <= 0 {
		return fmt.Errorf("tidal id must be positive")
	}
	if r.Match.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}
