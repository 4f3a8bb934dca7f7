// Deezer [Source] implementation
//
// Uses the public REST API at api.deezer.com. Deezer reports most errors in a
// 200 response body ({"error": {"type", "message", "code"}}), so responses are
// inspected before decoding.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/normalizer"
	"github.com/desertthunder/musixporter/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DeezerName       = "deezer"
	defaultDeezerURL = "https://api.deezer.com"

	deezerQuotaExceeded = 4
	deezerServiceBusy   = 700
	deezerDataNotFound  = 800
	deezerOAuthError    = 300
	deezerPermission    = 200
)

var (
	deezerPlaylistURL = regexp.MustCompile(`deezer\.com/(?:[a-z]{2}(?:-[a-z]{2})?/)?playlist/(\d+)`)
	numericID         = regexp.MustCompile(`^\d+$`)
)

var deezerFields = normalizer.MustFieldMap(DeezerName,
	normalizer.Mapping{Path: "title", Target: normalizer.Title},
	normalizer.Mapping{Path: "title_short", Target: normalizer.Title},
	normalizer.Mapping{Path: "contributors[].name", Target: normalizer.Artists},
	normalizer.Mapping{Path: "artist.name", Target: normalizer.Artists},
	normalizer.Mapping{Path: "album.title", Target: normalizer.Album},
	normalizer.Mapping{Path: "album.cover_xl", Target: normalizer.AlbumCover},
	normalizer.Mapping{Path: "album.cover", Target: normalizer.AlbumCover},
	normalizer.Mapping{Path: "duration", Target: normalizer.DurationSeconds},
	normalizer.Mapping{Path: "isrc", Target: normalizer.ExternalID, Key: "isrc"},
	normalizer.Mapping{Path: "id", Target: normalizer.ExternalID, Key: DeezerName},
	normalizer.Mapping{Path: "explicit_lyrics", Target: normalizer.Explicit},
	normalizer.Mapping{Path: "title_version", Target: normalizer.Version},
	normalizer.Mapping{Path: "time_add", Target: normalizer.AddedAtUnix},
)

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerEnvelope struct {
	Error *deezerError `json:"error"`
}

type deezerPlaylist struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	NbTracks     int    `json:"nb_tracks"`
	PictureXL    string `json:"picture_xl"`
	CreationDate string `json:"creation_date"`
}

type deezerTrackPage struct {
	Data  []map[string]any `json:"data"`
	Total int              `json:"total"`
	Next  string           `json:"next"`
}

// DeezerSource implements [Source] for Deezer playlists.
type DeezerSource struct {
	session  *Session
	baseURL  string
	token    string
	pageSize int
}

// NewDeezerSource creates a Deezer source with its own rate-limited session.
func NewDeezerSource(cfg *shared.Config, logger *log.Logger) *DeezerSource {
	creds := cfg.Credentials.Deezer
	opts := OptsFromConfig(DeezerName, cfg, logger)
	opts.RateLimit = rate.Limit(creds.RequestsPerSecond)
	opts.Burst = creds.Burst
	opts.Classify = classifyDeezer

	return NewDeezerSourceWithSession(NewSession(opts), creds.BaseURL, creds.AccessToken, cfg.Export.PageSize)
}

// NewDeezerSourceWithSession creates a Deezer source on an existing session.
func NewDeezerSourceWithSession(session *Session, baseURL, token string, pageSize int) *DeezerSource {
	if baseURL == "" {
		baseURL = defaultDeezerURL
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &DeezerSource{
		session:  session,
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		pageSize: pageSize,
	}
}

func (d *DeezerSource) Name() string { return DeezerName }

func (d *DeezerSource) FieldMap() normalizer.FieldMap { return deezerFields }

func (d *DeezerSource) Close() error { return d.session.Close() }

// ResolveRef accepts a numeric playlist ID or a deezer.com playlist URL.
func (d *DeezerSource) ResolveRef(raw string) (models.PlaylistRef, error) {
	raw = strings.TrimSpace(raw)
	ref := models.PlaylistRef{Source: DeezerName, Raw: raw}

	switch {
	case numericID.MatchString(raw):
		ref.ID = raw
	case deezerPlaylistURL.MatchString(raw):
		ref.ID = deezerPlaylistURL.FindStringSubmatch(raw)[1]
	default:
		return ref, fmt.Errorf("%w: %q is not a Deezer playlist ID or URL", shared.ErrInvalidArgument, raw)
	}
	return ref, nil
}

// Playlist calls GET /playlist/{id}.
func (d *DeezerSource) Playlist(ctx context.Context, ref models.PlaylistRef) (*models.Playlist, error) {
	var pl deezerPlaylist
	if err := d.get(ctx, "/playlist/"+url.PathEscape(ref.ID), nil, ref.ID, &pl); err != nil {
		return nil, err
	}

	playlist := &models.Playlist{
		ID:          strconv.FormatInt(pl.ID, 10),
		Name:        pl.Title,
		Description: pl.Description,
		TrackCount:  pl.NbTracks,
		Cover:       pl.PictureXL,
	}
	if created, err := time.Parse(time.DateTime, pl.CreationDate); err == nil {
		created = created.UTC()
		playlist.CreatedAt = &created
	}
	return playlist, nil
}

// FetchPage calls GET /playlist/{id}/tracks?index=&limit=. The cursor is the next index.
func (d *DeezerSource) FetchPage(ctx context.Context, ref models.PlaylistRef, cursor string) (*Page, error) {
	index := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad deezer cursor %q", shared.ErrInvalidArgument, cursor)
		}
		index = n
	}

	query := url.Values{}
	query.Set("index", strconv.Itoa(index))
	query.Set("limit", strconv.Itoa(d.pageSize))

	var resp deezerTrackPage
	if err := d.get(ctx, "/playlist/"+url.PathEscape(ref.ID)+"/tracks", query, ref.ID, &resp); err != nil {
		return nil, err
	}

	page := &Page{Total: resp.Total, Entries: make([]models.RawTrackEntry, 0, len(resp.Data))}
	for _, item := range resp.Data {
		page.Entries = append(page.Entries, models.RawTrackEntry{Source: DeezerName, Fields: Flatten(item)})
	}
	if resp.Next != "" && len(resp.Data) > 0 {
		page.Next = strconv.Itoa(index + len(resp.Data))
	}

	d.session.Logger().Debug("fetched page", "playlist", ref.ID, "index", index, "entries", len(page.Entries), "total", resp.Total)
	return page, nil
}

func (d *DeezerSource) get(ctx context.Context, path string, query url.Values, id string, out any) error {
	if query == nil {
		query = url.Values{}
	}
	if d.token != "" {
		query.Set("access_token", d.token)
	}

	endpoint := d.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := d.session.GetJSON(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("deezer request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(DeezerName, "playlist", id, resp, ""); err != nil {
		return err
	}

	body, err := PeekBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read deezer response: %w", err)
	}

	var env deezerEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return env.Error.asError(id)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode deezer response: %w", err)
	}
	return nil
}

func (e *deezerError) asError(id string) error {
	switch {
	case e.Code == deezerDataNotFound:
		return &shared.NotFoundError{Service: DeezerName, Resource: "playlist", ID: id}
	case e.Type == "OAuthException", e.Code == deezerOAuthError, e.Code == deezerPermission:
		return &shared.PermissionError{Service: DeezerName, StatusCode: http.StatusForbidden, Message: e.Message}
	default:
		return fmt.Errorf("%w: deezer error %d (%s): %s", shared.ErrAPIRequest, e.Code, e.Type, e.Message)
	}
}

// classifyDeezer retries quota and busy errors that Deezer returns with status 200.
func classifyDeezer(resp *http.Response) (bool, time.Duration) {
	if resp.StatusCode != http.StatusOK {
		return false, 0
	}
	body, err := PeekBody(resp)
	if err != nil || !strings.Contains(string(body), `"error"`) {
		return false, 0
	}

	var env deezerEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return false, 0
	}
	switch env.Error.Code {
	case deezerQuotaExceeded:
		return true, 5 * time.Second
	case deezerServiceBusy:
		return true, 0
	}
	return false, 0
}
