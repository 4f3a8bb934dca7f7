package tidal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musixporter/internal/services"
	"github.com/desertthunder/musixporter/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	ServiceName = "tidal"

	tokenURL       = "https://auth.tidal.com/v1/oauth2/token"
	defaultBaseURL = "https://api.tidal.com/v1"
	defaultCountry = "FR"
	imageBaseURL   = "https://resources.tidal.com/images/"
)

// Track is a Tidal catalogue track as returned by GET /search.
type Track struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Version  string   `json:"version"`
	Duration int      `json:"duration"`
	Explicit bool     `json:"explicit"`
	ISRC     string   `json:"isrc"`
	Artist   *Artist  `json:"artist"`
	Artists  []Artist `json:"artists"`
	Album    *Album   `json:"album"`
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

// PrimaryArtist returns the main artist, falling back to the first credited one.
func (t Track) PrimaryArtist() Artist {
	if t.Artist != nil && t.Artist.Name != "" {
		return *t.Artist
	}
	if len(t.Artists) > 0 {
		return t.Artists[0]
	}
	return Artist{Name: "Unknown"}
}

type searchResponse struct {
	Tracks struct {
		Items []Track `json:"items"`
	} `json:"tracks"`
}

// Searcher finds catalogue tracks for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Track, error)
}

// Client calls the Tidal v1 search API with a client-credentials token.
type Client struct {
	session *services.Session
	http    *http.Client
	baseURL string
	country string
}

// NewClient authenticates with the configured Tidal credentials. Token requests and
// searches share one rate-limited, retrying session.
func NewClient(cfg *shared.Config, logger *log.Logger) (*Client, error) {
	creds := cfg.Credentials.Tidal
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: tidal requires TIDAL_CLIENT_ID and TIDAL_CLIENT_SECRET", shared.ErrMissingCredentials)
	}

	opts := services.OptsFromConfig(ServiceName, cfg, logger)
	opts.RateLimit = rate.Limit(cfg.Tidal.RequestsPerSecond)
	opts.Burst = max(cfg.Tidal.Workers, 1)
	session := services.NewSession(opts)

	cc := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, session.Client())

	return NewClientWithHTTP(session, cc.Client(ctx), defaultBaseURL, creds.CountryCode), nil
}

// NewClientWithHTTP builds a client from an already authorized HTTP client.
func NewClientWithHTTP(session *services.Session, httpClient *http.Client, baseURL, country string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if country == "" {
		country = defaultCountry
	}
	return &Client{
		session: session,
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		country: strings.ToUpper(country),
	}
}

// Country returns the catalogue country code used for searches.
func (c *Client) Country() string { return c.country }

// Search calls GET /search?query=&types=TRACKS&countryCode=&limit=.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("types", "TRACKS")
	params.Set("countryCode", c.country)
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			status := http.StatusUnauthorized
			if rerr.Response != nil {
				status = rerr.Response.StatusCode
			}
			return nil, &shared.PermissionError{Service: ServiceName, StatusCode: status, Message: rerr.ErrorDescription}
		}
		return nil, fmt.Errorf("tidal search failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &shared.PermissionError{Service: ServiceName, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &shared.HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode tidal search response: %w", err)
	}
	return out.Tracks.Items, nil
}

// Close releases the client's session.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

// CoverURL expands a Tidal image ID into its 640x640 resource URL.
func CoverURL(id string) string {
	if id == "" {
		return ""
	}
	return imageBaseURL + strings.ReplaceAll(id, "-", "/") + "/640x640.jpg"
}
