// Package services defines the [Source] interface for upstream music services and implements it
// for Deezer, YouTube Music and Spotify.
//
// # Source Interface
//
// Every adapter resolves a user-supplied playlist reference, fetches playlist metadata and
// returns pages of raw entries. [Tracks] wraps a source in a [Pager], which exposes the
// entries as a lazy, single-use iter.Seq2 numbered 1..N in upstream order.
//
// # Sessions
//
// Each source owns a [Session]: an explicit, closable HTTP client whose [RetryTransport]
// rate-limits requests and retries timeouts, network errors, 408, 429 and 5xx responses
// with exponential backoff. Retry-After hints are honored up to a ceiling. When retries
// run out the request fails with [shared.UpstreamUnavailableError].
//
// # Deezer
//
// [DeezerSource] pages GET /playlist/{id}/tracks with index/limit. Deezer reports errors in
// 200 bodies; quota (code 4) and busy (code 700) errors are retried by the session.
//
// # YouTube Music
//
// [YouTubeSource] talks to the FastAPI proxy wrapping ytmusicapi. The proxy handles YouTube
// Music authentication; the auth file path is sent in the X-Auth-File header.
//
// # Spotify
//
// [SpotifySource] uses the zmb3/spotify client with client-credentials or a static token.
//
// # Error Handling
//
// Sources use typed errors from the shared package:
//   - [shared.NotFoundError] : playlist does not exist (matches [shared.ErrPlaylistNotFound])
//   - [shared.PermissionError] : 401/403 or an OAuth error body
//   - [shared.UpstreamUnavailableError] : retries exhausted
//   - [shared.HTTPStatusError] : any other non-2xx status (matches [shared.ErrAPIRequest])
//
// # Field Maps
//
// Raw entries are flattened to dotted paths ("album.title", "artists[].name") and each source
// publishes the [normalizer.FieldMap] that turns them into canonical tracks.
package services
