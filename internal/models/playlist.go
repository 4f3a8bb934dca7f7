package models

import (
	"fmt"
	"time"
)

// PlaylistRef identifies a playlist on a specific upstream service.
type PlaylistRef struct {
	Source string
	ID     string
	Raw    string // what the user typed: an ID or a URL
}

func (r PlaylistRef) String() string {
	return r.Source + ":" + r.ID
}

// Playlist is upstream playlist metadata.
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Cover       string
	CreatedAt   *time.Time
}

// ExportDocument is the complete result of one export run, in upstream track order.
type ExportDocument struct {
	Source     string
	ExportedAt time.Time
	Playlist   Playlist
	Tracks     []ExportTrack
}

// ExportSummary reports the outcome of a run.
type ExportSummary struct {
	Exported   int
	Skipped    int
	Unmatched  int
	OutputPath string
}

func (s ExportSummary) String() string {
	msg := fmt.Sprintf("%d exported, %d skipped", s.Exported, s.Skipped)
	if s.Unmatched > 0 {
		msg += fmt.Sprintf(", %d unmatched", s.Unmatched)
	}
	return msg
}
