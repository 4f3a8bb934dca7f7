package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/musixporter/internal/repositories"
	"github.com/desertthunder/musixporter/internal/shared"
	"github.com/desertthunder/musixporter/internal/ui"
	"github.com/urfave/cli/v3"
)

type historyEntry struct {
	ID         string `json:"id"`
	Sequence   int    `json:"sequence"`
	Source     string `json:"source"`
	PlaylistID string `json:"playlist_id"`
	Playlist   string `json:"playlist"`
	OutputPath string `json:"output_path"`
	Exported   int    `json:"exported"`
	Skipped    int    `json:"skipped"`
	Unmatched  int    `json:"unmatched"`
	CreatedAt  string `json:"created_at"`
}

// History lists recorded exports.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	if r.config.Database.Path == "" {
		return fmt.Errorf("%w: export history needs database.path", shared.ErrInvalidConfig)
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	records, err := repositories.NewExportRepository(db).List(ctx, cmd.String("source"), cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		entries := make([]historyEntry, 0, len(records))
		for _, rec := range records {
			entries = append(entries, historyEntry{
				ID:         rec.ID(),
				Sequence:   rec.Sequence,
				Source:     rec.Source,
				PlaylistID: rec.PlaylistID,
				Playlist:   rec.PlaylistName,
				OutputPath: rec.OutputPath,
				Exported:   rec.Exported,
				Skipped:    rec.Skipped,
				Unmatched:  rec.Unmatched,
				CreatedAt:  rec.CreatedAt().UTC().Format(time.RFC3339),
			})
		}
		return r.writeJSON(entries, true)
	}

	return r.writePlain("%s\n", ui.HistoryTable(records, r.now()))
}
