// Package models defines the data carried through the musixporter export pipeline.
//
// The package contains two categories of types:
//
// 1. Pipeline values, produced and consumed once per run:
//   - [PlaylistRef] : which playlist on which service
//   - [RawTrackEntry] : one upstream playlist item, flattened
//   - [CanonicalTrack] : the service-agnostic normalized track
//   - [Match] : a resolved Tidal track for a canonical track
//   - [ExportDocument] : everything the writer serializes
//
// 2. Persistent records, stored in SQLite by the repositories package:
//   - [ExportRecord] : history of completed runs
//   - [MatchRecord] : cached Tidal matches keyed by source track
//
// Persistent records implement [Model].
package models
