// Package tidal maps canonical tracks to Tidal catalogue IDs.
//
// A [Client] authenticates with the client-credentials flow and calls the v1 search
// endpoint. The [Mapper] tries an ISRC lookup first and falls back to fuzzy artist and
// title queries scored with [Score]; candidates under 0.8 are rejected. Search results
// are cached for the run and resolved matches can be persisted through a [MatchStore].
package tidal
