package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/musixporter/internal/models"
)

// MatchRepository caches Tidal matches by source track.
//
// Rows are keyed by (source, source_id) so a re-run of the same playlist skips
// the catalogue search for tracks that were already resolved.
type MatchRepository struct {
	db *sql.DB
}

// NewMatchRepository creates a new MatchRepository with the given database connection
func NewMatchRepository(db *sql.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// SaveMatch inserts or replaces the match for the record's source track.
func (r *MatchRepository) SaveMatch(ctx context.Context, rec *models.MatchRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	artists, err := json.Marshal(rec.Match.Artists)
	if err != nil {
		return fmt.Errorf("failed to encode artists: %w", err)
	}

	query := `
		INSERT INTO track_matches (source, source_id, isrc, tidal_id, title, version, duration, explicit,
			artists, album_id, album_title, album_cover, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, source_id) DO UPDATE SET
			isrc = excluded.isrc,
			tidal_id = excluded.tidal_id,
			title = excluded.title,
			version = excluded.version,
			duration = excluded.duration,
			explicit = excluded.explicit,
			artists = excluded.artists,
			album_id = excluded.album_id,
			album_title = excluded.album_title,
			album_cover = excluded.album_cover,
			score = excluded.score,
			created_at = excluded.created_at
	`

	m := rec.Match
	_, err = r.db.ExecContext(ctx, query,
		rec.Source,
		rec.SourceID,
		rec.ISRC,
		m.ID,
		m.Title,
		m.Version,
		m.Duration,
		m.Explicit,
		string(artists),
		m.Album.ID,
		m.Album.Title,
		m.Album.Cover,
		m.Score,
		rec.CreatedAt().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

// FindMatch returns the cached match or nil, nil when there is none.
func (r *MatchRepository) FindMatch(ctx context.Context, source, sourceID string) (*models.MatchRecord, error) {
	query := `
		SELECT source, source_id, isrc, tidal_id, title, version, duration, explicit,
			artists, album_id, album_title, album_cover, score, created_at
		FROM track_matches
		WHERE source = ? AND source_id = ?
	`

	var (
		rec       models.MatchRecord
		isrc      sql.NullString
		artists   string
		createdAt time.Time
	)
	m := &rec.Match

	err := r.db.QueryRowContext(ctx, query, source, sourceID).Scan(
		&rec.Source, &rec.SourceID, &isrc, &m.ID, &m.Title, &m.Version, &m.Duration, &m.Explicit,
		&artists, &m.Album.ID, &m.Album.Title, &m.Album.Cover, &m.Score, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}

	if err := json.Unmarshal([]byte(artists), &m.Artists); err != nil {
		return nil, fmt.Errorf("failed to decode artists: %w", err)
	}
	rec.ISRC = isrc.String

	return models.RestoreMatchRecord(createdAt, rec), nil
}

// Count returns the number of cached matches.
func (r *MatchRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM track_matches").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return n, nil
}

// Purge deletes every cached match and returns how many were removed.
func (r *MatchRepository) Purge(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM track_matches")
	if err != nil {
		return 0, fmt.Errorf("failed to purge matches: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}
