// YouTube Music [Source] implementation
//
// Communicates with the FastAPI proxy wrapping the ytmusicapi Python library.
// The proxy handles YouTube Music authentication; the auth file path travels in
// the X-Auth-File header on each request.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/normalizer"
	"github.com/desertthunder/musixporter/internal/shared"
)

const (
	YouTubeName       = "ytmusic"
	defaultYTBaseURL  = "http://localhost:8080"
	youtubeAuthHeader = "X-Auth-File"
)

var youtubeListID = regexp.MustCompile(`^[A-Za-z0-9_-]{2,}$`)

var youtubeFields = normalizer.MustFieldMap(YouTubeName,
	normalizer.Mapping{Path: "title", Target: normalizer.Title},
	normalizer.Mapping{Path: "artists[].name", Target: normalizer.Artists},
	normalizer.Mapping{Path: "album.name", Target: normalizer.Album},
	normalizer.Mapping{Path: "thumbnails[].url", Target: normalizer.AlbumCover},
	normalizer.Mapping{Path: "duration_seconds", Target: normalizer.DurationSeconds},
	normalizer.Mapping{Path: "duration", Target: normalizer.DurationText},
	normalizer.Mapping{Path: "isrc", Target: normalizer.ExternalID, Key: "isrc"},
	normalizer.Mapping{Path: "videoId", Target: normalizer.ExternalID, Key: YouTubeName},
	normalizer.Mapping{Path: "isExplicit", Target: normalizer.Explicit},
)

// YouTubeImage represents an image/thumbnail from YouTube Music.
type YouTubeImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// youtubePlaylistPage is the proxy's GET /api/playlists/{id} payload.
type youtubePlaylistPage struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Privacy      string           `json:"privacy"`
	TrackCount   int              `json:"trackCount"`
	Thumbnails   []YouTubeImage   `json:"thumbnails"`
	Tracks       []map[string]any `json:"tracks"`
	Continuation string           `json:"continuation"`
}

// YouTubeSource implements [Source] for YouTube Music via the proxy.
type YouTubeSource struct {
	session  *Session
	baseURL  string
	authFile string
	pageSize int
}

// NewYouTubeSource creates a YouTube Music source from configuration.
func NewYouTubeSource(cfg *shared.Config, logger *log.Logger) *YouTubeSource {
	session := NewSession(OptsFromConfig(YouTubeName, cfg, logger))
	creds := cfg.Credentials.YouTube
	return NewYouTubeSourceWithSession(session, creds.ProxyURL, creds.HeadersPath, cfg.Export.PageSize)
}

// NewYouTubeSourceWithSession creates a YouTube Music source on an existing session.
func NewYouTubeSourceWithSession(session *Session, baseURL, authFile string, pageSize int) *YouTubeSource {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &YouTubeSource{
		session:  session,
		baseURL:  strings.TrimRight(baseURL, "/"),
		authFile: authFile,
		pageSize: pageSize,
	}
}

func (y *YouTubeSource) Name() string { return YouTubeName }

func (y *YouTubeSource) FieldMap() normalizer.FieldMap { return youtubeFields }

func (y *YouTubeSource) Close() error { return y.session.Close() }

// ResolveRef accepts a playlist ID or a music.youtube.com / youtube.com URL with a list parameter.
func (y *YouTubeSource) ResolveRef(raw string) (models.PlaylistRef, error) {
	raw = strings.TrimSpace(raw)
	ref := models.PlaylistRef{Source: YouTubeName, Raw: raw}

	if strings.Contains(raw, "://") || strings.Contains(raw, "youtube.com") {
		u, err := url.Parse(raw)
		if err == nil && u.Scheme == "" {
			u, err = url.Parse("https://" + raw)
		}
		if err != nil {
			return ref, fmt.Errorf("%w: %q is not a valid URL", shared.ErrInvalidArgument, raw)
		}
		raw = u.Query().Get("list")
	}

	if !youtubeListID.MatchString(raw) {
		return ref, fmt.Errorf("%w: %q is not a YouTube Music playlist ID or URL", shared.ErrInvalidArgument, ref.Raw)
	}
	ref.ID = raw
	return ref, nil
}

// Health calls GET /health on the proxy.
func (y *YouTubeSource) Health(ctx context.Context) error {
	resp, err := y.session.GetJSON(ctx, y.baseURL+"/health", y.headers())
	if err != nil {
		return fmt.Errorf("%w: youtube music proxy unreachable: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	return statusError(YouTubeName, "proxy", y.baseURL, resp, "")
}

// Playlist calls GET /api/playlists/{id}?limit=0 for metadata only.
func (y *YouTubeSource) Playlist(ctx context.Context, ref models.PlaylistRef) (*models.Playlist, error) {
	query := url.Values{}
	query.Set("limit", "0")

	var pl youtubePlaylistPage
	if err := y.get(ctx, ref.ID, query, &pl); err != nil {
		return nil, err
	}

	playlist := &models.Playlist{
		ID:          pl.ID,
		Name:        pl.Title,
		Description: pl.Description,
		TrackCount:  pl.TrackCount,
	}
	if playlist.ID == "" {
		playlist.ID = ref.ID
	}
	if n := len(pl.Thumbnails); n > 0 {
		playlist.Cover = pl.Thumbnails[n-1].URL
	}
	return playlist, nil
}

// FetchPage calls GET /api/playlists/{id}?limit=&continuation=. The cursor is the
// proxy's continuation token; proxies that return every track at once end after one page.
func (y *YouTubeSource) FetchPage(ctx context.Context, ref models.PlaylistRef, cursor string) (*Page, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(y.pageSize))
	if cursor != "" {
		query.Set("continuation", cursor)
	}

	var pl youtubePlaylistPage
	if err := y.get(ctx, ref.ID, query, &pl); err != nil {
		return nil, err
	}

	page := &Page{Total: pl.TrackCount, Next: pl.Continuation, Entries: make([]models.RawTrackEntry, 0, len(pl.Tracks))}
	for _, track := range pl.Tracks {
		page.Entries = append(page.Entries, models.RawTrackEntry{Source: YouTubeName, Fields: Flatten(track)})
	}
	return page, nil
}

func (y *YouTubeSource) headers() http.Header {
	h := http.Header{}
	if y.authFile != "" {
		h.Set(youtubeAuthHeader, y.authFile)
	}
	return h
}

func (y *YouTubeSource) get(ctx context.Context, id string, query url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/api/playlists/%s", y.baseURL, url.PathEscape(id))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := y.session.GetJSON(ctx, endpoint, y.headers())
	if err != nil {
		return fmt.Errorf("youtube music request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var errResp struct {
			Detail string `json:"detail"`
		}
		_ = decodeJSON(resp, &errResp)
		return statusError(YouTubeName, "playlist", id, resp, errResp.Detail)
	}

	return decodeJSON(resp, out)
}
