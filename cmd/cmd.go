// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/musixporter/internal/services"
	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

// app builds the root command. A fresh tree is built per run because flags keep parsed state.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "musixporter",
		Usage:   "Export streaming playlists to a Monochrome (Tidal) import file",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging and per-track progress",
			},
		},
		Before:   r.Before,
		Commands: r.register(),
	}
}

// exportFlags are shared by every source command.
func exportFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "playlist",
			Aliases:  []string{"p"},
			Usage:    "Playlist ID or URL",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output file path (default: <export.output_dir>/monochrome_tidal_import-<timestamp>.json)",
		},
		&cli.BoolFlag{
			Name:  "no-map",
			Usage: "Skip Tidal ID mapping; tracks are exported with id 0",
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Entries requested per upstream page",
		},
		&cli.BoolFlag{
			Name:  "no-prefetch",
			Usage: "Fetch pages strictly one at a time",
		},
	}
	return append(flags, extra...)
}

func deezerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   services.DeezerName,
		Usage:  "Export a Deezer playlist",
		Flags:  exportFlags(),
		Action: r.Export(services.DeezerName),
	}
}

func ytmusicCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    services.YouTubeName,
		Aliases: []string{"ytm", "yt"},
		Usage:   "Export a YouTube Music playlist through the ytmusicapi proxy",
		Flags: exportFlags(
			&cli.StringFlag{
				Name:  "headers",
				Usage: "Path to browser.json auth file (default: credentials.youtube.headers_path)",
			},
		),
		Action: r.Export(services.YouTubeName),
	}
}

func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    services.SpotifyName,
		Aliases: []string{"spot"},
		Usage:   "Export a Spotify playlist",
		Flags:   exportFlags(),
		Action:  r.Export(services.SpotifyName),
	}
}

// setupCommand handles setup operations for configuration, database and authentication.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the default configuration file",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "purge-matches",
						Usage: "Delete every cached Tidal match",
					},
				},
			},
			{
				Name:    "youtube",
				Aliases: []string{"yt", "ytmusic"},
				Usage:   "Configure YouTube Music authentication from browser headers",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command from browser DevTools (Copy as cURL)",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to .sh file containing cURL command",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output path for browser.json (default: credentials.youtube.headers_path)",
					},
				},
				Action: r.SetupYouTube,
			},
		},
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List previous exports",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of exports to show",
				Value: 20,
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Only show exports from this source",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

func tidalCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tidal",
		Usage: "Tidal catalogue tools",
		Commands: []*cli.Command{
			{
				Name:  "search",
				Usage: "Run the track matcher for one title/artist, or replay a missed tracks report",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "title",
						Usage: "Track title",
					},
					&cli.StringFlag{
						Name:  "artist",
						Usage: "Primary artist",
					},
					&cli.StringFlag{
						Name:  "missed",
						Usage: "Re-run the lookup for every track in a missed_tidal.json report",
					},
					&cli.StringFlag{
						Name:  "country",
						Usage: "Catalogue country code (default: credentials.tidal.country_code)",
					},
					&cli.StringFlag{
						Name:  "isrc",
						Usage: "ISRC to try before the fuzzy search",
					},
					&cli.IntFlag{
						Name:  "duration",
						Usage: "Track duration in seconds",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TidalSearch,
			},
		},
	}
}
