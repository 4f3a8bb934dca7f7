package ui

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/desertthunder/musixporter/internal/models"
	"github.com/desertthunder/musixporter/internal/tasks"
	"github.com/desertthunder/musixporter/internal/tidal"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Progress prints updates until the channel is closed. Per-track lines are only
// printed when verbose is set.
func Progress(w io.Writer, updates <-chan tasks.ProgressUpdate, verbose bool) {
	for u := range updates {
		switch u.Phase {
		case tasks.FetchTracks, tasks.MapTracks:
			if verbose {
				fmt.Fprintln(w, styles.Help(u.Message))
			}
		case tasks.SkipTrack:
			fmt.Fprintln(w, styles.Warn(u.Message))
		case tasks.Complete:
		default:
			fmt.Fprintln(w, u.Message)
		}
	}
}

// Summary prints the outcome of a finished export.
func Summary(w io.Writer, result *tasks.ExportResult) {
	s := result.Summary
	fmt.Fprintln(w, styles.OK("✓ "+s.String()))
	fmt.Fprintf(w, "%s %s\n", styles.Help("wrote"), s.OutputPath)

	if result.MissedPath != "" {
		fmt.Fprintf(w, "%s %s\n",
			styles.Warn(fmt.Sprintf("%d tracks not found on Tidal, see", s.Unmatched)), result.MissedPath)
	}
}

// Failure prints a styled error line.
func Failure(w io.Writer, err error) {
	fmt.Fprintln(w, styles.Err("✗ "+err.Error()))
}

// HistoryTable renders past exports, newest first, with times relative to now.
func HistoryTable(records []*models.ExportRecord, now time.Time) string {
	if len(records) == 0 {
		return styles.Help("no exports recorded yet")
	}

	headers := []string{"#", "When", "Source", "Playlist", "Exported", "Skipped", "Unmatched", "Output"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			strconv.Itoa(r.Sequence),
			humanize.RelTime(r.CreatedAt(), now, "ago", "from now"),
			r.Source,
			r.PlaylistName,
			humanize.Comma(int64(r.Exported)),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Unmatched),
			r.OutputPath,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight})
}

// CandidatesTable renders scored Tidal search candidates, best first as given.
func CandidatesTable(candidates []tidal.Candidate) string {
	if len(candidates) == 0 {
		return styles.Help("no candidates")
	}

	headers := []string{"Score", "Tidal ID", "Title", "Artist", "Duration", "ISRC", "Query"}
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{
			fmt.Sprintf("%.3f", c.Score),
			strconv.FormatInt(c.Track.ID, 10),
			c.Track.Title,
			c.Track.PrimaryArtist().Name,
			formatDuration(c.Track.Duration),
			c.Track.ISRC,
			c.Query,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignRight})
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
