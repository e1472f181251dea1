// Package qbittorrent talks to remote qBittorrent Web API instances on
// behalf of the management server.
//
// Unlike a single-instance client, this package manages many independent
// instances at once, each with its own authenticated session. It provides:
//
//   - An in-memory session cache keyed by instance id, with lazy expiry
//   - A login orchestrator implementing the cookie handshake, including the
//     skip-auth mode where an instance trusts the caller's network position
//     and no cookie exists at all
//   - A generic authenticated request proxy that rewrites inbound API calls
//     to the right instance, injects the cached cookie, and retries exactly
//     once after re-authenticating when the remote rejects a stale session
//   - Thin helpers for the torrent list, stop/start, and version endpoints
//     used by connection tests and the speedtest orchestration
//
// Sessions are intentionally ephemeral: nothing here survives a restart.
package qbittorrent
