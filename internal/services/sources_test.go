package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/shared"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func drain(t *testing.T, src Source, ref models.PlaylistRef) []models.RawTrackEntry {
	t.Helper()
	var entries []models.RawTrackEntry
	for entry, err := range Tracks(src, ref, true).All(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func deezerTrack(id int, title string) map[string]any {
	return map[string]any{
		"id":              id,
		"title":           title,
		"title_version":   "",
		"duration":        215,
		"isrc":            fmt.Sprintf("gbarl%07d", id),
		"explicit_lyrics": id%2 == 0,
		"time_add":        1700000000,
		"artist":          map[string]any{"id": 1, "name": "Artist " + strconv.Itoa(id)},
		"album":           map[string]any{"id": 9, "title": "Album", "cover_xl": "https://e-cdns-images.dzcdn.net/images/cover/abc/1000x1000.jpg"},
	}
}

func TestDeezerSource(t *testing.T) {
	tracks := []map[string]any{deezerTrack(1, "One"), deezerTrack(2, "Two"), deezerTrack(3, "Three")}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/playlist/123":
			writeJSON(t, w, map[string]any{
				"id": 123, "title": "Road Trip", "description": "songs", "nb_tracks": 3,
				"picture_xl": "https://cdn/pl.jpg", "creation_date": "2023-05-01 10:00:00",
			})
		case "/playlist/123/tracks":
			index, _ := strconv.Atoi(r.URL.Query().Get("index"))
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			end := min(index+limit, len(tracks))
			body := map[string]any{"data": tracks[index:end], "total": len(tracks)}
			if end < len(tracks) {
				body["next"] = fmt.Sprintf("http://%s/playlist/123/tracks?index=%d", r.Host, end)
			}
			writeJSON(t, w, body)
		case "/playlist/404/tracks", "/playlist/404":
			writeJSON(t, w, map[string]any{"error": map[string]any{"type": "DataException", "message": "no data", "code": 800}})
		case "/playlist/403":
			writeJSON(t, w, map[string]any{"error": map[string]any{"type": "OAuthException", "message": "Invalid OAuth access token.", "code": 300}})
		case "/playlist/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	session, _ := testSession(DeezerName, classifyDeezer)
	src := NewDeezerSourceWithSession(session, server.URL, "", 2)
	defer src.Close()

	t.Run("ResolveRef", func(t *testing.T) {
		tests := []struct {
			raw     string
			want    string
			wantErr bool
		}{
			{"123", "123", false},
			{"https://www.deezer.com/playlist/908622995", "908622995", false},
			{"https://www.deezer.com/fr/playlist/908622995?utm=x", "908622995", false},
			{"deezer.com/en-gb/playlist/42", "42", false},
			{"https://open.spotify.com/playlist/abc", "", true},
			{"", "", true},
		}
		for _, tc := range tests {
			ref, err := src.ResolveRef(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("ResolveRef(%q): expected ErrInvalidArgument, got %v", tc.raw, err)
				}
				continue
			}
			if err != nil || ref.ID != tc.want || ref.Source != DeezerName {
				t.Errorf("ResolveRef(%q) = %+v, %v; expected id %s", tc.raw, ref, err, tc.want)
			}
		}
	})

	t.Run("Playlist", func(t *testing.T) {
		pl, err := src.Playlist(context.Background(), models.PlaylistRef{Source: DeezerName, ID: "123"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pl.ID != "123" || pl.Name != "Road Trip" || pl.TrackCount != 3 || pl.Cover != "https://cdn/pl.jpg" {
			t.Errorf("unexpected playlist: %+v", pl)
		}
		if pl.CreatedAt == nil || pl.CreatedAt.Year() != 2023 {
			t.Errorf("expected creation date to be parsed, got %v", pl.CreatedAt)
		}
	})

	t.Run("pages through every track", func(t *testing.T) {
		entries := drain(t, src, models.PlaylistRef{Source: DeezerName, ID: "123"})
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}

		track, warn := src.FieldMap().Normalize(entries[2])
		if warn != nil {
			t.Fatalf("unexpected warning: %v", warn)
		}
		if track.Position != 3 || track.Title != "Three" || track.PrimaryArtist() != "Artist 3" {
			t.Errorf("unexpected track: %+v", track)
		}
		if track.Duration == nil || *track.Duration != 215 {
			t.Errorf("expected duration 215, got %v", track.Duration)
		}
		if track.ISRC() != "GBARL0000003" {
			t.Errorf("expected upper-cased ISRC, got %q", track.ISRC())
		}
		if track.ExternalIDs[DeezerName] != "3" {
			t.Errorf("expected deezer id 3, got %q", track.ExternalIDs[DeezerName])
		}
		if track.AddedAt == nil || track.AddedAt.Unix() != 1700000000 {
			t.Errorf("expected added-at from time_add, got %v", track.AddedAt)
		}
	})

	t.Run("in-body not found", func(t *testing.T) {
		_, err := src.Playlist(context.Background(), models.PlaylistRef{Source: DeezerName, ID: "404"})
		var nf *shared.NotFoundError
		if !errors.As(err, &nf) || !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("oauth error is permission denied", func(t *testing.T) {
		_, err := src.Playlist(context.Background(), models.PlaylistRef{Source: DeezerName, ID: "403"})
		if !errors.Is(err, shared.ErrPermissionDenied) {
			t.Errorf("expected ErrPermissionDenied, got %v", err)
		}
	})

	t.Run("http 404 is not found", func(t *testing.T) {
		_, err := src.Playlist(context.Background(), models.PlaylistRef{Source: DeezerName, ID: "gone"})
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})
}

func TestYouTubeSource(t *testing.T) {
	var mu sync.Mutex
	var authHeaders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		authHeaders = append(authHeaders, r.Header.Get(youtubeAuthHeader))
		mu.Unlock()
		switch r.URL.Path {
		case "/health":
			writeJSON(t, w, map[string]string{"status": "ok"})
		case "/api/playlists/PLabc":
			body := map[string]any{
				"id": "PLabc", "title": "Mix", "trackCount": 3,
				"thumbnails": []map[string]any{{"url": "small.jpg"}, {"url": "large.jpg"}},
			}
			if r.URL.Query().Get("limit") == "0" {
				writeJSON(t, w, body)
				return
			}
			if r.URL.Query().Get("continuation") == "" {
				body["tracks"] = []map[string]any{
					{"videoId": "v1", "title": "One", "artists": []map[string]any{{"name": "A"}, {"name": "B"}}, "duration": "3:30", "isExplicit": true},
					{"videoId": "v2", "title": "Two", "artists": []map[string]any{{"name": "C"}}, "duration_seconds": 200},
				}
				body["continuation"] = "tok-1"
			} else {
				body["tracks"] = []map[string]any{
					{"videoId": "v3", "title": "", "artists": []map[string]any{{"name": "D"}}},
				}
			}
			writeJSON(t, w, body)
		case "/api/playlists/missing":
			w.WriteHeader(http.StatusNotFound)
			writeJSON(t, w, map[string]string{"detail": "Playlist not found"})
		case "/api/playlists/private":
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(t, w, map[string]string{"detail": "auth file expired"})
		}
	}))
	defer server.Close()

	session, _ := testSession(YouTubeName, nil)
	src := NewYouTubeSourceWithSession(session, server.URL, "/path/to/browser.json", 50)
	defer src.Close()

	t.Run("ResolveRef", func(t *testing.T) {
		tests := []struct {
			raw  string
			want string
		}{
			{"PLabc", "PLabc"},
			{"https://music.youtube.com/playlist?list=PLxyz_123", "PLxyz_123"},
			{"https://www.youtube.com/watch?v=abc&list=RDCLAK5uy", "RDCLAK5uy"},
			{"music.youtube.com/playlist?list=OLAK5", "OLAK5"},
		}
		for _, tc := range tests {
			ref, err := src.ResolveRef(tc.raw)
			if err != nil || ref.ID != tc.want {
				t.Errorf("ResolveRef(%q) = %q, %v; expected %q", tc.raw, ref.ID, err, tc.want)
			}
		}

		if _, err := src.ResolveRef("https://music.youtube.com/watch?v=abc"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for URL without list, got %v", err)
		}
	})

	t.Run("Health", func(t *testing.T) {
		if err := src.Health(context.Background()); err != nil {
			t.Errorf("expected healthy proxy, got %v", err)
		}
	})

	t.Run("Playlist", func(t *testing.T) {
		pl, err := src.Playlist(context.Background(), models.PlaylistRef{Source: YouTubeName, ID: "PLabc"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pl.Name != "Mix" || pl.TrackCount != 3 || pl.Cover != "large.jpg" {
			t.Errorf("unexpected playlist: %+v", pl)
		}
	})

	t.Run("follows continuation tokens", func(t *testing.T) {
		entries := drain(t, src, models.PlaylistRef{Source: YouTubeName, ID: "PLabc"})
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}

		first, warn := src.FieldMap().Normalize(entries[0])
		if warn != nil {
			t.Fatalf("unexpected warning: %v", warn)
		}
		if len(first.Artists) != 2 || first.Duration == nil || *first.Duration != 210 || !first.Explicit {
			t.Errorf("unexpected first track: %+v", first)
		}
		if first.ExternalIDs[YouTubeName] != "v1" {
			t.Errorf("expected video id v1, got %q", first.ExternalIDs[YouTubeName])
		}

		second, _ := src.FieldMap().Normalize(entries[1])
		if second.Duration == nil || *second.Duration != 200 {
			t.Errorf("expected duration_seconds to be used, got %v", second.Duration)
		}

		if _, warn := src.FieldMap().Normalize(entries[2]); warn == nil || warn.Position != 3 {
			t.Errorf("expected untitled entry 3 to be skipped, got %v", warn)
		}
	})

	t.Run("sends auth file header", func(t *testing.T) {
		mu.Lock()
		defer mu.Unlock()
		for i, h := range authHeaders {
			if h != "/path/to/browser.json" {
				t.Errorf("request %d: expected auth header, got %q", i, h)
			}
		}
	})

	t.Run("errors", func(t *testing.T) {
		_, err := src.Playlist(context.Background(), models.PlaylistRef{Source: YouTubeName, ID: "missing"})
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}

		_, err = src.Playlist(context.Background(), models.PlaylistRef{Source: YouTubeName, ID: "private"})
		var perm *shared.PermissionError
		if !errors.As(err, &perm) || perm.Message != "auth file expired" {
			t.Errorf("expected PermissionError carrying the proxy detail, got %v", err)
		}
	})
}

func TestSpotifySource(t *testing.T) {
	const id = "37i9dQZF1DXcBWIGoYBM5M"

	track := func(n int) map[string]any {
		return map[string]any{
			"type":         "track",
			"id":           fmt.Sprintf("track%d", n),
			"name":         fmt.Sprintf("Song %d", n),
			"duration_ms":  185500,
			"explicit":     n == 1,
			"artists":      []map[string]any{{"id": "a", "name": "Artist"}, {"id": "b", "name": "Feature"}},
			"album":        map[string]any{"id": "al", "name": "Album", "images": []map[string]any{{"url": "https://i.scdn.co/image/big"}}},
			"external_ids": map[string]any{"isrc": "USUM71703861"},
		}
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(t, w, map[string]any{"error": map[string]any{"status": 401, "message": "No token provided"}})
			return
		}

		switch r.URL.Path {
		case "/playlists/" + id:
			writeJSON(t, w, map[string]any{
				"id": id, "name": "Today's Top Hits", "description": "hits",
				"images": []map[string]any{{"url": "https://i.scdn.co/image/pl"}},
				"tracks": map[string]any{"total": 3, "items": []any{}},
			})
		case "/playlists/" + id + "/tracks":
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			body := map[string]any{"total": 3}
			if offset == 0 {
				body["items"] = []map[string]any{
					{"added_at": "2024-01-02T03:04:05Z", "track": track(1)},
					{"added_at": "2024-01-03T03:04:05Z", "track": track(2)},
				}
				body["next"] = "more"
			} else {
				body["items"] = []map[string]any{{"added_at": "2024-01-04T03:04:05Z", "track": track(3)}}
			}
			writeJSON(t, w, body)
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(t, w, map[string]any{"error": map[string]any{"status": 404, "message": "Not found."}})
		}
	}))
	defer server.Close()

	session, _ := testSession(SpotifyName, nil)
	client := &http.Client{Transport: &bearer{token: "test-token", base: session.Client().Transport}}
	src := NewSpotifySourceWithClient(session, client, server.URL, 2)
	defer src.Close()

	t.Run("ResolveRef", func(t *testing.T) {
		for _, raw := range []string{
			id,
			"spotify:playlist:" + id,
			"https://open.spotify.com/playlist/" + id + "?si=abc",
			"https://open.spotify.com/intl-fr/playlist/" + id,
		} {
			ref, err := src.ResolveRef(raw)
			if err != nil || ref.ID != id {
				t.Errorf("ResolveRef(%q) = %q, %v", raw, ref.ID, err)
			}
		}
		if _, err := src.ResolveRef("not a playlist"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Playlist", func(t *testing.T) {
		pl, err := src.Playlist(context.Background(), models.PlaylistRef{Source: SpotifyName, ID: id})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pl.Name != "Today's Top Hits" || pl.TrackCount != 3 || pl.Cover != "https://i.scdn.co/image/pl" {
			t.Errorf("unexpected playlist: %+v", pl)
		}
	})

	t.Run("pages through every track", func(t *testing.T) {
		entries := drain(t, src, models.PlaylistRef{Source: SpotifyName, ID: id})
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}

		got, warn := src.FieldMap().Normalize(entries[0])
		if warn != nil {
			t.Fatalf("unexpected warning: %v", warn)
		}
		if got.Title != "Song 1" || len(got.Artists) != 2 || !got.Explicit {
			t.Errorf("unexpected track: %+v", got)
		}
		if got.Duration == nil || *got.Duration != 186 {
			t.Errorf("expected 185500ms rounded to 186s, got %v", got.Duration)
		}
		if got.ISRC() != "USUM71703861" || got.ExternalIDs[SpotifyName] != "track1" {
			t.Errorf("unexpected external ids: %v", got.ExternalIDs)
		}
		if got.AddedAt == nil || got.AddedAt.Day() != 2 {
			t.Errorf("expected added_at to be parsed, got %v", got.AddedAt)
		}
		if got.Album == nil || *got.Album != "Album" || got.AlbumCover != "https://i.scdn.co/image/big" {
			t.Errorf("unexpected album: %v %q", got.Album, got.AlbumCover)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := src.Playlist(context.Background(), models.PlaylistRef{Source: SpotifyName, ID: "missing"})
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		anon := NewSpotifySourceWithClient(session, session.Client(), server.URL, 2)
		_, err := anon.Playlist(context.Background(), models.PlaylistRef{Source: SpotifyName, ID: id})
		if !errors.Is(err, shared.ErrPermissionDenied) {
			t.Errorf("expected ErrPermissionDenied, got %v", err)
		}
	})
}

type bearer struct {
	token string
	base  http.RoundTripper
}

func (b *bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.base.RoundTrip(req)
}
