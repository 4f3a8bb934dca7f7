package models

import (
	"strings"
	"time"
)

// RawTrackEntry is one upstream playlist item before normalization.
//
// Fields holds the upstream record flattened to dotted paths ("album.title");
// array members are collected under "[]" paths ("artists[].name" -> []any).
type RawTrackEntry struct {
	Source   string
	Position int
	Fields   map[string]any
}

// Lookup returns the value stored at path, treating nil as missing.
func (e RawTrackEntry) Lookup(path string) (any, bool) {
	v, ok := e.Fields[path]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// CanonicalTrack is the service-agnostic track record.
//
// Title is never empty and Artists is never empty. Optional data the upstream
// did not provide stays nil.
type CanonicalTrack struct {
	Position    int
	Title       string
	Artists     []string
	Album       *string
	AlbumCover  string
	Duration    *int // seconds
	ExternalIDs map[string]string
	Explicit    bool
	Version     string
	AddedAt     *time.Time
}

// PrimaryArtist returns the first credited artist.
func (t CanonicalTrack) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// ISRC returns the upper-cased ISRC when the upstream supplied one.
func (t CanonicalTrack) ISRC() string {
	return strings.ToUpper(strings.TrimSpace(t.ExternalIDs["isrc"]))
}

// Match is a Tidal catalogue track resolved for a canonical track.
type Match struct {
	ID       int64
	Title    string
	Version  string
	Duration int
	Explicit bool
	ISRC     string
	Artists  []MatchArtist
	Album    MatchAlbum
	Score    float64
}

type MatchArtist struct {
	ID   int64
	Name string
}

type MatchAlbum struct {
	ID    int64
	Title string
	Cover string
}

// ExportTrack pairs a canonical track with its Tidal match, if one was resolved.
type ExportTrack struct {
	Track CanonicalTrack
	Match *Match
}
