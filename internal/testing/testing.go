// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/normalizer"
	"github.com/desertthunder/musixporter/internal/services"
	"github.com/desertthunder/musixporter/internal/tidal"
)

// MockSourceName is the service key used by [MockSource].
const MockSourceName = "mock"

var mockFields = normalizer.MustFieldMap(MockSourceName,
	normalizer.Mapping{Path: "title", Target: normalizer.Title},
	normalizer.Mapping{Path: "artists[].name", Target: normalizer.Artists},
	normalizer.Mapping{Path: "album.title", Target: normalizer.Album},
	normalizer.Mapping{Path: "duration", Target: normalizer.DurationSeconds},
	normalizer.Mapping{Path: "isrc", Target: normalizer.ExternalID, Key: "isrc"},
	normalizer.Mapping{Path: "id", Target: normalizer.ExternalID, Key: MockSourceName},
)

// MockSource is a test double for [services.Source] serving in-memory pages.
//
// Each element of Pages is one page of flattened entries; the cursor is the page index.
type MockSource struct {
	Meta        *models.Playlist
	Pages       [][]map[string]any
	PlaylistErr error
	PageErr     error // returned instead of the second page

	mu       sync.Mutex
	fetches  int
	closed   bool
}

// Entry builds a flattened entry with the fields [MockSource] maps.
func Entry(id, title string, artists ...string) map[string]any {
	names := make([]any, len(artists))
	for i, a := range artists {
		names[i] = a
	}
	return map[string]any{"id": id, "title": title, "artists[].name": names}
}

func (m *MockSource) Name() string { return MockSourceName }

func (m *MockSource) ResolveRef(raw string) (models.PlaylistRef, error) {
	if raw == "" {
		return models.PlaylistRef{}, errors.New("empty playlist reference")
	}
	return models.PlaylistRef{Source: MockSourceName, ID: raw, Raw: raw}, nil
}

func (m *MockSource) Playlist(ctx context.Context, ref models.PlaylistRef) (*models.Playlist, error) {
	if m.PlaylistErr != nil {
		return nil, m.PlaylistErr
	}
	if m.Meta != nil {
		pl := *m.Meta
		return &pl, nil
	}
	total := 0
	for _, p := range m.Pages {
		total += len(p)
	}
	return &models.Playlist{ID: ref.ID, Name: "Mock Playlist", TrackCount: total}, nil
}

func (m *MockSource) FetchPage(ctx context.Context, ref models.PlaylistRef, cursor string) (*services.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.fetches++
	m.mu.Unlock()

	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, err
		}
		idx = n
	}
	if idx > 0 && m.PageErr != nil {
		return nil, m.PageErr
	}
	if idx >= len(m.Pages) {
		return &services.Page{}, nil
	}

	page := &services.Page{}
	for _, fields := range m.Pages[idx] {
		page.Entries = append(page.Entries, models.RawTrackEntry{Source: MockSourceName, Fields: fields})
	}
	if idx+1 < len(m.Pages) {
		page.Next = strconv.Itoa(idx + 1)
	}
	return page, nil
}

func (m *MockSource) FieldMap() normalizer.FieldMap { return mockFields }

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Fetches reports how many pages were requested.
func (m *MockSource) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// StaticSearcher is a [tidal.Searcher] answering from a fixed query table.
type StaticSearcher struct {
	Results map[string][]tidal.Track
	Err     error

	mu      sync.Mutex
	queries []string
}

func (s *StaticSearcher) Search(ctx context.Context, query string, limit int) ([]tidal.Track, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	items := s.Results[query]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Queries returns the queries received so far.
func (s *StaticSearcher) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// MemoryHistory is an in-memory export history.
type MemoryHistory struct {
	Err     error
	Records []*models.ExportRecord
}

func (h *MemoryHistory) Create(ctx context.Context, rec *models.ExportRecord) error {
	if h.Err != nil {
		return h.Err
	}
	rec.Sequence = len(h.Records) + 1
	h.Records = append(h.Records, rec)
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
