package tidal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/shared"
)

const (
	searchLimit    = 5
	acceptScore    = 0.8
	earlyExitScore = 0.9
	maxWorkers     = 16
)

// MatchStore persists resolved matches across runs.
type MatchStore interface {
	// FindMatch returns nil, nil when nothing is cached for the source track.
	FindMatch(ctx context.Context, source, sourceID string) (*models.MatchRecord, error)
	SaveMatch(ctx context.Context, record *models.MatchRecord) error
}

// Query describes one source track to resolve.
type Query struct {
	Title    string
	Artist   string
	ISRC     string
	Duration int // seconds; zero when unknown
}

// QueryFor builds a query from a canonical track.
func QueryFor(t models.CanonicalTrack) Query {
	q := Query{Title: t.Title, Artist: t.PrimaryArtist(), ISRC: t.ISRC()}
	if t.Duration != nil {
		q.Duration = *t.Duration
	}
	return q
}

// Candidate is one scored search result.
type Candidate struct {
	Query string  `json:"query"`
	Track Track   `json:"track"`
	Score float64 `json:"score"`
}

// Result is the outcome of resolving a [Query].
type Result struct {
	Match      *models.Match // nil when nothing scored high enough
	Strategy   string        // "cache", "isrc" or "fuzzy"
	BestScore  float64
	Candidates []Candidate
}

// Miss records a track that could not be mapped.
type Miss struct {
	Position  int     `json:"position"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	ISRC      string  `json:"isrc,omitempty"`
	Duration  int     `json:"duration,omitempty"`
	BestScore float64 `json:"bestScore"`
	Error     string  `json:"error,omitempty"`
}

// MapResult holds mapped tracks in playlist order and the tracks that were missed.
type MapResult struct {
	Tracks []models.ExportTrack
	Misses []Miss
}

// Mapper resolves canonical tracks to Tidal catalogue IDs: ISRC lookup first, then
// fuzzy artist and title search.
type Mapper struct {
	search  Searcher
	store   MatchStore
	logger  *log.Logger
	workers int

	mu      sync.Mutex
	queries map[string][]Track
	results map[string]*Result
}

// NewMapper creates a mapper. store may be nil.
func NewMapper(search Searcher, store MatchStore, logger *log.Logger, workers int) *Mapper {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	workers = min(max(workers, 1), maxWorkers)
	return &Mapper{
		search:  search,
		store:   store,
		logger:  logger.With("service", ServiceName),
		workers: workers,
		queries: make(map[string][]Track),
		results: make(map[string]*Result),
	}
}

// Lookup resolves q against the catalogue without touching the match store.
//
// Results are memoized on the raw title and artist: "Song" and "Song (Live)" are
// different tracks even though they score alike.
func (m *Mapper) Lookup(ctx context.Context, q Query) (*Result, error) {
	key := fmt.Sprintf("%s|%s|%s|%d", strings.TrimSpace(q.Title), strings.TrimSpace(q.Artist), strings.ToUpper(strings.TrimSpace(q.ISRC)), q.Duration)

	m.mu.Lock()
	cached, ok := m.results[key]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	res, err := m.lookupISRC(ctx, q)
	if err != nil {
		return nil, err
	}
	if res.Match == nil {
		fuzzy, err := m.lookupFuzzy(ctx, q)
		if err != nil {
			return nil, err
		}
		fuzzy.Candidates = append(res.Candidates, fuzzy.Candidates...)
		res = fuzzy
	}

	m.mu.Lock()
	m.results[key] = res
	m.mu.Unlock()
	return res, nil
}

// Find resolves one canonical track, consulting and filling the match store when
// the track carries an ID for source.
func (m *Mapper) Find(ctx context.Context, source string, t models.CanonicalTrack) (*Result, error) {
	sourceID := t.ExternalIDs[source]

	if m.store != nil && sourceID != "" {
		rec, err := m.store.FindMatch(ctx, source, sourceID)
		if err != nil {
			m.logger.Warn("match cache read failed", "source", source, "id", sourceID, "err", err)
		} else if rec != nil {
			match := rec.Match
			return &Result{Match: &match, Strategy: "cache", BestScore: match.Score}, nil
		}
	}

	res, err := m.Lookup(ctx, QueryFor(t))
	if err != nil {
		return nil, err
	}

	if res.Match != nil && m.store != nil && sourceID != "" {
		rec := models.NewMatchRecord(source, sourceID, t.ISRC(), *res.Match)
		if err := m.store.SaveMatch(ctx, rec); err != nil {
			m.logger.Warn("match cache write failed", "source", source, "id", sourceID, "err", err)
		}
	}
	return res, nil
}

// MapAll resolves every track with a bounded worker pool. Results keep the input
// order; unmatched tracks are left out of Tracks and reported in Misses.
//
// Cancellation and authentication failures abort the run; other search failures
// turn the affected track into a miss.
func (m *Mapper) MapAll(ctx context.Context, source string, tracks []models.CanonicalTrack, progress func(done, total int)) (*MapResult, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	type outcome struct {
		res *Result
		err error
	}
	outcomes := make([]outcome, len(tracks))
	jobs := make(chan int)

	var done atomic.Int64
	var wg sync.WaitGroup
	for range m.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := m.Find(ctx, source, tracks[i])
				if err != nil && shared.IsFatal(err) {
					cancel(err)
				}
				outcomes[i] = outcome{res: res, err: err}
				if progress != nil {
					progress(int(done.Add(1)), len(tracks))
				}
			}
		}()
	}

dispatch:
	for i := range tracks {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}

	result := &MapResult{Tracks: make([]models.ExportTrack, 0, len(tracks))}
	for i, o := range outcomes {
		t := tracks[i]
		if o.err == nil && o.res.Match != nil {
			result.Tracks = append(result.Tracks, models.ExportTrack{Track: t, Match: o.res.Match})
			continue
		}

		miss := Miss{Position: t.Position, Title: t.Title, Artist: t.PrimaryArtist(), ISRC: t.ISRC()}
		if t.Duration != nil {
			miss.Duration = *t.Duration
		}
		if o.err != nil {
			miss.Error = o.err.Error()
			m.logger.Warn("tidal lookup failed", "position", t.Position, "title", t.Title, "err", o.err)
		} else {
			miss.BestScore = o.res.BestScore
			m.logger.Debug("no tidal match", "position", t.Position, "title", t.Title, "best", fmt.Sprintf("%.2f", o.res.BestScore))
		}
		result.Misses = append(result.Misses, miss)
	}
	return result, nil
}

func (m *Mapper) lookupISRC(ctx context.Context, q Query) (*Result, error) {
	res := &Result{Strategy: "isrc"}
	isrc := strings.ToUpper(strings.TrimSpace(q.ISRC))
	if isrc == "" {
		return res, nil
	}

	items, err := m.cachedSearch(ctx, isrc)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.ISRC), isrc) {
			res.Match = toMatch(item, 1)
			res.BestScore = 1
			res.Candidates = append(res.Candidates, Candidate{Query: isrc, Track: item, Score: 1})
			return res, nil
		}
	}
	return res, nil
}

func (m *Mapper) lookupFuzzy(ctx context.Context, q Query) (*Result, error) {
	res := &Result{Strategy: "fuzzy"}
	if q.Title == "" {
		return res, nil
	}

	title := shared.CleanString(q.Title)
	artist := shared.CleanString(q.Artist)

	queries := []string{strings.TrimSpace(q.Artist + " " + q.Title)}
	if cleaned := strings.TrimSpace(artist + " " + title); cleaned != queries[0] {
		queries = append(queries, cleaned)
	}

	var best *Track
	for _, query := range queries {
		items, err := m.cachedSearch(ctx, query)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if !plausible(title, shared.CleanString(item.Title)) {
				continue
			}
			score := Score(title, artist, q.Duration, item)
			res.Candidates = append(res.Candidates, Candidate{Query: query, Track: item, Score: score})
			if score > res.BestScore {
				res.BestScore = score
				best = &item
			}
		}

		if res.BestScore >= earlyExitScore {
			break
		}
	}

	if best != nil && res.BestScore >= acceptScore {
		res.Match = toMatch(*best, res.BestScore)
	}
	return res, nil
}

func (m *Mapper) cachedSearch(ctx context.Context, query string) ([]Track, error) {
	m.mu.Lock()
	items, ok := m.queries[query]
	m.mu.Unlock()
	if ok {
		return items, nil
	}

	items, err := m.search.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.queries[query] = items
	m.mu.Unlock()
	return items, nil
}

func toMatch(t Track, score float64) *models.Match {
	match := &models.Match{
		ID:       t.ID,
		Title:    t.Title,
		Version:  t.Version,
		Duration: t.Duration,
		Explicit: t.Explicit,
		ISRC:     strings.ToUpper(t.ISRC),
		Score:    score,
	}

	artists := t.Artists
	if len(artists) == 0 {
		artists = []Artist{t.PrimaryArtist()}
	}
	for _, a := range artists {
		match.Artists = append(match.Artists, models.MatchArtist{ID: a.ID, Name: a.Name})
	}

	if t.Album != nil {
		match.Album = models.MatchAlbum{ID: t.Album.ID, Title: t.Album.Title, Cover: CoverURL(t.Album.Cover)}
	}
	return match
}
