package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/shared"
)

const exportColumns = `id, sequence, source, playlist_id, playlist_name, output_path, exported, skipped, unmatched, created_at`

// ExportRepository records completed export runs.
type ExportRepository struct {
	db *sql.DB
}

// NewExportRepository creates a new ExportRepository with the given database connection
func NewExportRepository(db *sql.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a [models.ExportRecord] with a generated ID and sequence.
func (r *ExportRepository) Create(ctx context.Context, rec *models.ExportRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "exports")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO exports (` + exportColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		rec.Source,
		rec.PlaylistID,
		rec.PlaylistName,
		rec.OutputPath,
		rec.Exported,
		rec.Skipped,
		rec.Unmatched,
		rec.CreatedAt().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert export: %w", err)
	}

	rec.SetID(id)
	rec.Sequence = sequence
	return nil
}

// Get retrieves an export by ID.
func (r *ExportRepository) Get(ctx context.Context, id string) (*models.ExportRecord, error) {
	query := `SELECT ` + exportColumns + ` FROM exports WHERE id = ?`

	rec, err := scanExport(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("export not found: %s", id)
	}
	return rec, err
}

// List returns the most recent exports first. A non-positive limit returns all of them.
func (r *ExportRepository) List(ctx context.Context, source string, limit int) ([]*models.ExportRecord, error) {
	query := `SELECT ` + exportColumns + ` FROM exports`
	args := []any{}

	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}

	query += " ORDER BY sequence DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exports: %w", err)
	}
	defer rows.Close()

	var records []*models.ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExport(s scanner) (*models.ExportRecord, error) {
	var (
		id        string
		rec       models.ExportRecord
		createdAt time.Time
	)

	err := s.Scan(&id, &rec.Sequence, &rec.Source, &rec.PlaylistID, &rec.PlaylistName,
		&rec.OutputPath, &rec.Exported, &rec.Skipped, &rec.Unmatched, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan export: %w", err)
	}

	return models.RestoreExportRecord(id, createdAt, rec), nil
}
