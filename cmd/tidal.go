package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/desertthunder/musixporter/internal/shared"
	"github.com/desertthunder/musixporter/internal/tidal"
	"github.com/desertthunder/musixporter/internal/ui"
	"github.com/urfave/cli/v3"
)

type searchOutput struct {
	Strategy   string            `json:"strategy"`
	BestScore  float64           `json:"best_score"`
	Match      *tidal.Track      `json:"match,omitempty"`
	Candidates []tidal.Candidate `json:"candidates"`
}

type replayOutput struct {
	Position  int          `json:"position"`
	Title     string       `json:"title"`
	Artist    string       `json:"artist"`
	Strategy  string       `json:"strategy"`
	BestScore float64      `json:"best_score"`
	Match     *tidal.Track `json:"match,omitempty"`
}

// TidalSearch runs the matcher for a single track, or for every entry of a missed
// tracks report, and prints the scored candidates.
func (r *Runner) TidalSearch(ctx context.Context, cmd *cli.Command) error {
	cfg := r.searchConfig(cmd)
	if !cfg.TidalEnabled() {
		return fmt.Errorf("%w: tidal credentials are not configured", shared.ErrMissingCredentials)
	}

	client, err := tidal.NewClient(cfg, r.logger)
	if err != nil {
		return err
	}
	defer client.Close()

	r.logger.Debug("searching tidal catalogue", "country", client.Country())
	return r.tidalSearch(ctx, cmd, client)
}

// searchConfig applies --country on a copy of the loaded configuration.
func (r *Runner) searchConfig(cmd *cli.Command) *shared.Config {
	cfg := *r.config
	if country := cmd.String("country"); country != "" {
		cfg.Credentials.Tidal.CountryCode = country
	}
	return &cfg
}

func (r *Runner) tidalSearch(ctx context.Context, cmd *cli.Command, search tidal.Searcher) error {
	mapper := tidal.NewMapper(search, nil, r.logger, 1)

	if path := cmd.String("missed"); path != "" {
		return r.replayMissed(ctx, cmd, mapper, path)
	}

	title, artist := cmd.String("title"), cmd.String("artist")
	if title == "" || artist == "" {
		return fmt.Errorf("%w: --title and --artist are required unless --missed is set", shared.ErrMissingArgument)
	}

	res, err := mapper.Lookup(ctx, tidal.Query{
		Title:    title,
		Artist:   artist,
		ISRC:     cmd.String("isrc"),
		Duration: cmd.Int("duration"),
	})
	if err != nil {
		return fmt.Errorf("tidal search failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(searchOutput{
			Strategy:   res.Strategy,
			BestScore:  res.BestScore,
			Match:      matchedTrack(res),
			Candidates: res.Candidates,
		}, true)
	}

	r.writePlain("%s\n", ui.CandidatesTable(res.Candidates))
	if res.Match == nil {
		return r.writePlainln("No match (best score %.3f, strategy %s)", res.BestScore, res.Strategy)
	}
	return r.writePlainln("Match: %d %s (score %.3f, strategy %s)", res.Match.ID, res.Match.Title, res.Match.Score, res.Strategy)
}

// replayMissed re-runs the lookup for every entry of a missed_tidal.json report.
func (r *Runner) replayMissed(ctx context.Context, cmd *cli.Command, mapper *tidal.Mapper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read missed tracks report: %w", err)
	}

	var misses []tidal.Miss
	if err := json.Unmarshal(data, &misses); err != nil {
		return fmt.Errorf("%w: %s is not a missed tracks report: %v", shared.ErrInvalidInput, path, err)
	}

	out := make([]replayOutput, 0, len(misses))
	found := 0
	for _, miss := range misses {
		res, err := mapper.Lookup(ctx, tidal.Query{
			Title:    miss.Title,
			Artist:   miss.Artist,
			ISRC:     miss.ISRC,
			Duration: miss.Duration,
		})
		if err != nil {
			if shared.IsFatal(err) {
				return fmt.Errorf("tidal search failed: %w", err)
			}
			r.logger.Warn("lookup failed", "position", miss.Position, "title", miss.Title, "err", err)
			res = &tidal.Result{Strategy: "error"}
		}

		row := replayOutput{
			Position:  miss.Position,
			Title:     miss.Title,
			Artist:    miss.Artist,
			Strategy:  res.Strategy,
			BestScore: res.BestScore,
			Match:     matchedTrack(res),
		}
		if row.Match != nil {
			found++
		}
		out = append(out, row)
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, true)
	}

	for _, row := range out {
		if row.Match == nil {
			r.writePlain("#%d %s - %s: no match (best score %.3f)\n", row.Position, row.Artist, row.Title, row.BestScore)
			continue
		}
		r.writePlain("#%d %s - %s: %d %s (score %.3f, strategy %s)\n",
			row.Position, row.Artist, row.Title, row.Match.ID, row.Match.Title, row.BestScore, row.Strategy)
	}
	return r.writePlainln("%d of %d missed tracks now match", found, len(out))
}

// matchedTrack returns the candidate that was accepted as the match.
func matchedTrack(res *tidal.Result) *tidal.Track {
	if res.Match == nil {
		return nil
	}
	for _, c := range res.Candidates {
		if c.Track.ID == res.Match.ID {
			return &c.Track
		}
	}
	return nil
}
