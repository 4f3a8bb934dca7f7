// Spotify [Source] implementation
//
// Uses the zmb3/spotify Web API client on top of the session's retrying HTTP client.
// Authentication is the client credentials flow, or a pre-issued access token.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/normalizer"
	"github.com/desertthunder/musixporter/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	SpotifyName     = "spotify"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	// spotifyMaxPage is the largest limit GET /playlists/{id}/tracks accepts.
	spotifyMaxPage = 100
)

var (
	spotifyPlaylistURL = regexp.MustCompile(`open\.spotify\.com/(?:intl-[a-z]{2}/)?playlist/([A-Za-z0-9]+)`)
	spotifyURI         = regexp.MustCompile(`^spotify:playlist:([A-Za-z0-9]+)$`)
	spotifyID          = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)
)

var spotifyFields = normalizer.MustFieldMap(SpotifyName,
	normalizer.Mapping{Path: "name", Target: normalizer.Title},
	normalizer.Mapping{Path: "artists[].name", Target: normalizer.Artists},
	normalizer.Mapping{Path: "album.name", Target: normalizer.Album},
	normalizer.Mapping{Path: "album.images[].url", Target: normalizer.AlbumCover},
	normalizer.Mapping{Path: "duration_ms", Target: normalizer.DurationMillis},
	normalizer.Mapping{Path: "external_ids.isrc", Target: normalizer.ExternalID, Key: "isrc"},
	normalizer.Mapping{Path: "id", Target: normalizer.ExternalID, Key: SpotifyName},
	normalizer.Mapping{Path: "explicit", Target: normalizer.Explicit},
	normalizer.Mapping{Path: "added_at", Target: normalizer.AddedAtText},
)

// SpotifySource implements [Source] for Spotify playlists.
type SpotifySource struct {
	session  *Session
	client   *spotify.Client
	pageSize int
}

// NewSpotifySource creates a Spotify source. An access token takes precedence over
// client credentials; one of the two is required.
func NewSpotifySource(cfg *shared.Config, logger *log.Logger) (Source, error) {
	creds := cfg.Credentials.Spotify
	session := NewSession(OptsFromConfig(SpotifyName, cfg, logger))

	// Token requests go through the session client too.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, session.Client())

	var httpClient *http.Client
	switch {
	case creds.AccessToken != "":
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken}))
	case creds.ClientID != "" && creds.ClientSecret != "":
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     spotifyTokenURL,
		}
		httpClient = cc.Client(ctx)
	default:
		_ = session.Close()
		return nil, fmt.Errorf("%w: spotify requires SPOTIFY_TOKEN or SPOTIFY_ID and SPOTIFY_SECRET", shared.ErrMissingCredentials)
	}

	return NewSpotifySourceWithClient(session, httpClient, "", cfg.Export.PageSize), nil
}

// NewSpotifySourceWithClient creates a Spotify source from an authorized HTTP client.
// An empty baseURL uses the public Web API.
func NewSpotifySourceWithClient(session *Session, httpClient *http.Client, baseURL string, pageSize int) *SpotifySource {
	var opts []spotify.ClientOption
	if baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if pageSize <= 0 || pageSize > spotifyMaxPage {
		pageSize = spotifyMaxPage
	}
	return &SpotifySource{
		session:  session,
		client:   spotify.New(httpClient, opts...),
		pageSize: pageSize,
	}
}

func (s *SpotifySource) Name() string { return SpotifyName }

func (s *SpotifySource) FieldMap() normalizer.FieldMap { return spotifyFields }

func (s *SpotifySource) Close() error { return s.session.Close() }

// ResolveRef accepts a playlist ID, a spotify:playlist: URI or an open.spotify.com URL.
func (s *SpotifySource) ResolveRef(raw string) (models.PlaylistRef, error) {
	raw = strings.TrimSpace(raw)
	ref := models.PlaylistRef{Source: SpotifyName, Raw: raw}

	switch {
	case spotifyURI.MatchString(raw):
		ref.ID = spotifyURI.FindStringSubmatch(raw)[1]
	case spotifyPlaylistURL.MatchString(raw):
		ref.ID = spotifyPlaylistURL.FindStringSubmatch(raw)[1]
	case spotifyID.MatchString(raw):
		ref.ID = raw
	default:
		return ref, fmt.Errorf("%w: %q is not a Spotify playlist ID, URI or URL", shared.ErrInvalidArgument, raw)
	}
	return ref, nil
}

// Playlist calls GET /playlists/{id}.
func (s *SpotifySource) Playlist(ctx context.Context, ref models.PlaylistRef) (*models.Playlist, error) {
	pl, err := s.client.GetPlaylist(ctx, spotify.ID(ref.ID))
	if err != nil {
		return nil, spotifyError(err, ref.ID)
	}

	playlist := &models.Playlist{
		ID:          string(pl.ID),
		Name:        pl.Name,
		Description: pl.Description,
		TrackCount:  int(pl.Tracks.Total),
	}
	if playlist.ID == "" {
		playlist.ID = ref.ID
	}
	if len(pl.Images) > 0 {
		playlist.Cover = pl.Images[0].URL
	}
	return playlist, nil
}

// FetchPage calls GET /playlists/{id}/tracks?offset=&limit=. The cursor is the next offset.
// Podcast episodes yield an entry without track fields so they are skipped during normalization.
func (s *SpotifySource) FetchPage(ctx context.Context, ref models.PlaylistRef, cursor string) (*Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad spotify cursor %q", shared.ErrInvalidArgument, cursor)
		}
		offset = n
	}

	items, err := s.client.GetPlaylistItems(ctx, spotify.ID(ref.ID), spotify.Limit(s.pageSize), spotify.Offset(offset))
	if err != nil {
		return nil, spotifyError(err, ref.ID)
	}

	page := &Page{Total: int(items.Total), Entries: make([]models.RawTrackEntry, 0, len(items.Items))}
	for _, item := range items.Items {
		entry := models.RawTrackEntry{Source: SpotifyName}
		if item.Track.Track == nil {
			entry.Fields = map[string]any{"type": "episode", "added_at": item.AddedAt}
			page.Entries = append(page.Entries, entry)
			continue
		}

		fields, err := flattenValue(item.Track.Track)
		if err != nil {
			return nil, err
		}
		if item.AddedAt != "" {
			fields["added_at"] = item.AddedAt
		}
		entry.Fields = fields
		page.Entries = append(page.Entries, entry)
	}

	if items.Next != "" && len(items.Items) > 0 {
		page.Next = strconv.Itoa(offset + len(items.Items))
	}

	s.session.Logger().Debug("fetched page", "playlist", ref.ID, "offset", offset, "entries", len(page.Entries), "total", page.Total)
	return page, nil
}

// spotifyError maps client errors onto the shared error types.
func spotifyError(err error, id string) error {
	status, message := 0, ""

	var value spotify.Error
	var ptr *spotify.Error
	switch {
	case errors.As(err, &value):
		status, message = value.Status, value.Message
	case errors.As(err, &ptr) && ptr != nil:
		status, message = ptr.Status, ptr.Message
	default:
		return fmt.Errorf("spotify request failed: %w", err)
	}

	switch status {
	case http.StatusNotFound:
		return &shared.NotFoundError{Service: SpotifyName, Resource: "playlist", ID: id}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &shared.PermissionError{Service: SpotifyName, StatusCode: status, Message: message}
	default:
		return &shared.HTTPStatusError{StatusCode: status, Body: message}
	}
}
