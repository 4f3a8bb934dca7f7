// Package tasks runs playlist exports end to end with real-time progress reporting.
//
// [ExportEngine.Run] drives one export:
//
//  1. Fetches playlist metadata from the [services.Source]
//  2. Walks the lazy page sequence and normalizes every entry, skipping (and reporting) entries
//     that lack a title or artist
//  3. Optionally resolves each track to a Tidal ID through a [Mapper]
//  4. Writes the Monochrome document atomically, plus a report of unmatched tracks
//  5. Optionally records the run in a [HistoryStore]
//
// # Progress Reporting
//
// Updates are sent on a caller-owned channel with select/default, so a slow or absent
// reader never blocks the export.
package tasks
