package models

import (
	"testing"
	"time"
)

func TestExportSummary(t *testing.T) {
	tt := []struct {
		name    string
		summary ExportSummary
		want    string
	}{
		{"no unmatched", ExportSummary{Exported: 2, Skipped: 1}, "2 exported, 1 skipped"},
		{"with unmatched", ExportSummary{Exported: 5, Skipped: 0, Unmatched: 2}, "5 exported, 0 skipped, 2 unmatched"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.summary.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRawTrackEntry_Lookup(t *testing.T) {
	entry := RawTrackEntry{Fields: map[string]any{"title": "Song", "album.title": nil}}

	if v, ok := entry.Lookup("title"); !ok || v != "Song" {
		t.Errorf("Lookup(title) = %v, %v", v, ok)
	}
	if _, ok := entry.Lookup("album.title"); ok {
		t.Error("nil values should be reported missing")
	}
	if _, ok := entry.Lookup("duration"); ok {
		t.Error("absent paths should be reported missing")
	}
}

func TestCanonicalTrack(t *testing.T) {
	track := CanonicalTrack{
		Title:       "Song",
		Artists:     []string{"First", "Second"},
		ExternalIDs: map[string]string{"isrc": " usrc17607839 "},
	}

	if got := track.PrimaryArtist(); got != "First" {
		t.Errorf("PrimaryArtist() = %q", got)
	}
	if got := track.ISRC(); got != "USRC17607839" {
		t.Errorf("ISRC() = %q", got)
	}
	if got := (CanonicalTrack{}).PrimaryArtist(); got != "" {
		t.Errorf("PrimaryArtist() on empty track = %q", got)
	}
}

func TestExportRecord(t *testing.T) {
	doc := &ExportDocument{
		Source:     "deezer",
		ExportedAt: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
		Playlist:   Playlist{ID: "908622995", Name: "Road trip"},
	}

	t.Run("valid", func(t *testing.T) {
		record := NewExportRecord(doc, ExportSummary{Exported: 2, Skipped: 1, OutputPath: "out.json"})
		if err := record.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if !record.CreatedAt().Equal(doc.ExportedAt) {
			t.Errorf("CreatedAt() = %v, want %v", record.CreatedAt(), doc.ExportedAt)
		}
	})

	t.Run("missing output path", func(t *testing.T) {
		record := NewExportRecord(doc, ExportSummary{Exported: 2})
		if err := record.Validate(); err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestMatchRecord_Validate(t *testing.T) {
	valid := NewMatchRecord("deezer", "3135556", "GBDUW0000059", Match{ID: 77646170, Title: "Harder Better Faster Stronger"})
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if valid.ID() != "deezer:3135556" {
		t.Errorf("ID() = %q", valid.ID())
	}

	invalid := NewMatchRecord("deezer", "3135556", "", Match{Title: "x"})
	if err := invalid.Validate(); err == nil {
		t.Error("expected error for zero tidal id")
	}
}
