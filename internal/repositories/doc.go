// Package repositories implements SQLite persistence for export history and cached Tidal matches.
//
// Key Implementations:
//   - [ExportRepository] : one row per completed export run, ordered by sequence
//   - [MatchRepository] : Tidal matches keyed by (source, source track ID), satisfying tidal.MatchStore
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
