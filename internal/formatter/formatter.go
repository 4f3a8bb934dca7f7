// package formatter builds the Monochrome import document and writes it to disk atomically.
package formatter

import (
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/musixporter/internal/models"
)

const filenamePrefix = "monochrome_tidal_import-"

// Document is the Monochrome import file. Field order is the serialized key order.
type Document struct {
	Source             string     `json:"source"`
	ExportedAt         string     `json:"exportedAt"`
	FavoritesTracks    []Track    `json:"favorites_tracks"`
	FavoritesAlbums    []Album    `json:"favorites_albums"`
	FavoritesArtists   []Artist   `json:"favorites_artists"`
	FavoritesPlaylists []Playlist `json:"favorites_playlists"`
	UserPlaylists      []Playlist `json:"user_playlists"`
}

type Playlist struct {
	Cover     string  `json:"cover"`
	CreatedAt int64   `json:"createdAt"` // unix milliseconds
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Tracks    []Track `json:"tracks"`
}

type Track struct {
	ID              int64             `json:"id"`      // Tidal track ID; 0 when unmapped
	AddedAt         int64             `json:"addedAt"` // unix milliseconds
	Title           string            `json:"title"`
	Duration        *int              `json:"duration"`
	Explicit        bool              `json:"explicit"`
	Version         string            `json:"version"`
	StreamStartDate string            `json:"streamStartDate"`
	Artists         []Artist          `json:"artists"`
	Album           *Album            `json:"album"`
	ExternalIDs     map[string]string `json:"externalIds"`
}

type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Cover string `json:"cover"`
}

// Build converts an export document into the Monochrome schema.
//
// Mapped tracks take their catalogue data from the Tidal match and keep the
// source's external IDs; unmapped tracks carry ID 0 and the source metadata.
func Build(doc *models.ExportDocument) *Document {
	out := &Document{
		Source:             doc.Source,
		ExportedAt:         doc.ExportedAt.UTC().Format(time.RFC3339),
		FavoritesTracks:    []Track{},
		FavoritesAlbums:    []Album{},
		FavoritesArtists:   []Artist{},
		FavoritesPlaylists: []Playlist{},
	}

	pl := Playlist{
		ID:     doc.Playlist.ID,
		Name:   doc.Playlist.Name,
		Tracks: make([]Track, 0, len(doc.Tracks)),
	}
	if doc.Playlist.CreatedAt != nil {
		pl.CreatedAt = doc.Playlist.CreatedAt.UnixMilli()
	}
	for _, et := range doc.Tracks {
		pl.Tracks = append(pl.Tracks, buildTrack(et))
	}

	out.UserPlaylists = []Playlist{pl}
	return out
}

func buildTrack(et models.ExportTrack) Track {
	src := et.Track
	t := Track{
		Title:       src.Title,
		Duration:    src.Duration,
		Explicit:    src.Explicit,
		Version:     src.Version,
		Artists:     make([]Artist, 0, len(src.Artists)),
		ExternalIDs: make(map[string]string, len(src.ExternalIDs)),
	}
	maps.Copy(t.ExternalIDs, src.ExternalIDs)

	if src.AddedAt != nil {
		t.AddedAt = src.AddedAt.UnixMilli()
		t.StreamStartDate = src.AddedAt.UTC().Format(time.RFC3339)
	}

	if m := et.Match; m != nil {
		t.ID = m.ID
		t.Title = m.Title
		t.Explicit = m.Explicit
		t.Version = m.Version
		if m.Duration > 0 {
			d := m.Duration
			t.Duration = &d
		}
		for _, a := range m.Artists {
			t.Artists = append(t.Artists, Artist{ID: a.ID, Name: a.Name})
		}
		t.Album = &Album{ID: m.Album.ID, Title: m.Album.Title, Cover: NormalizeCover(m.Album.Cover)}
		return t
	}

	for _, name := range src.Artists {
		t.Artists = append(t.Artists, Artist{Name: name})
	}
	if src.Album != nil {
		t.Album = &Album{Title: *src.Album, Cover: NormalizeCover(src.AlbumCover)}
	}
	return t
}

// NormalizeCover turns a Tidal image URL or path into its compact dash-separated ID:
//
//	https://resources.tidal.com/images/bddf1064/b2fb/4c6f/a2d5/fd54685b1b42/640x640.jpg
//	-> bddf1064-b2fb-4c6f-a2d5-fd54685b1b42
//
// Covers hosted elsewhere are returned unchanged.
func NormalizeCover(cover string) string {
	if cover == "" {
		return ""
	}

	if strings.HasPrefix(cover, "http://") || strings.HasPrefix(cover, "https://") {
		u, err := url.Parse(cover)
		if err != nil || !strings.HasSuffix(u.Host, "tidal.com") {
			return cover
		}
		_, rest, ok := strings.Cut(u.Path, "/images/")
		if !ok {
			return cover
		}
		parts := strings.FieldsFunc(rest, func(r rune) bool { return r == '/' })
		if n := len(parts); n > 0 && strings.Contains(parts[n-1], ".") {
			parts = parts[:n-1]
		}
		if len(parts) == 0 {
			return cover
		}
		return strings.Join(parts, "-")
	}

	if strings.Contains(cover, "/") {
		parts := strings.FieldsFunc(cover, func(r rune) bool { return r == '/' })
		if len(parts) > 0 {
			return strings.Join(parts, "-")
		}
	}
	return cover
}

// DefaultFilename returns monochrome_tidal_import-<YYYYmmddTHHMMSS>.json for now.
func DefaultFilename(now time.Time) string {
	return filenamePrefix + now.Format("20060102T150405") + ".json"
}

// MissedFilename is the report of unmapped tracks written next to the document.
const MissedFilename = "missed_tidal.json"
