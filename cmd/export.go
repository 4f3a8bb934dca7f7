package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/musixporter/internal/repositories"
	"github.com/desertthunder/musixporter/internal/services"
	"github.com/desertthunder/musixporter/internal/shared"
	"github.com/desertthunder/musixporter/internal/tasks"
	"github.com/desertthunder/musixporter/internal/tidal"
	"github.com/desertthunder/musixporter/internal/ui"
	"github.com/urfave/cli/v3"
)

// healthChecker is implemented by sources that sit behind a local proxy.
type healthChecker interface {
	Health(ctx context.Context) error
}

// Export returns the action that exports one playlist from the named source.
func (r *Runner) Export(source string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg := *r.config
		if n := cmd.Int("page-size"); n > 0 {
			cfg.Export.PageSize = n
		}
		if cmd.Bool("no-prefetch") {
			cfg.Export.Prefetch = false
		}
		if source == services.YouTubeName {
			if headers := cmd.String("headers"); headers != "" {
				cfg.Credentials.YouTube.HeadersPath = headers
			}
		}

		src, err := services.NewSource(source, &cfg, r.logger)
		if err != nil {
			return err
		}
		defer src.Close()

		ref, err := src.ResolveRef(cmd.String("playlist"))
		if err != nil {
			return err
		}

		if hc, ok := src.(healthChecker); ok {
			if err := hc.Health(ctx); err != nil {
				return err
			}
		}

		var (
			history tasks.HistoryStore
			store   tidal.MatchStore
		)
		if db := r.openDatabase(); db != nil {
			defer db.Close()
			history = repositories.NewExportRepository(db)
			store = repositories.NewMatchRepository(db)
		}

		var mapper tasks.Mapper
		if !cmd.Bool("no-map") {
			client, err := r.tidalClient(&cfg)
			if err != nil {
				r.logger.Warn("tidal mapping disabled, tracks are exported with id 0", "reason", err)
			} else if client != nil {
				defer client.Close()
				mapper = tidal.NewMapper(client, store, r.logger, cfg.Tidal.Workers)
			}
		}

		engine := tasks.NewExportEngine(mapper, history, r.logger)

		progress := make(chan tasks.ProgressUpdate, 64)
		done := make(chan struct{})
		go func() {
			ui.Progress(r.output, progress, cmd.Bool("verbose"))
			close(done)
		}()

		result, err := engine.Run(ctx, progress, src, ref, tasks.ExportOpts{
			OutputPath: cmd.String("output"),
			OutputDir:  cfg.Export.OutputDir,
			Prefetch:   cfg.Export.Prefetch,
		})
		close(progress)
		<-done

		if err != nil {
			return fmt.Errorf("export of %s failed: %w", ref, err)
		}

		ui.Summary(r.output, result)
		return nil
	}
}

// tidalClient returns nil, nil when mapping is turned off in the configuration.
func (r *Runner) tidalClient(cfg *shared.Config) (*tidal.Client, error) {
	if !cfg.Tidal.Enabled {
		return nil, nil
	}
	if !cfg.TidalEnabled() {
		return nil, fmt.Errorf("%w: set credentials.tidal.client_id and client_secret (or TIDAL_CLIENT_ID/TIDAL_CLIENT_SECRET)", shared.ErrMissingCredentials)
	}
	return tidal.NewClient(cfg, r.logger)
}
