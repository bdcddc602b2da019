// Package discovery fetches candidate inscriptions from external chain
// indexers and normalizes them into curated items.
//
// # Sources
//
// The primary source is the Hiro ordinals API, queried for the most recent
// inscriptions restricted to visual content types. The secondary source is
// the Pipe/TAP deployments API; it is best-effort and its failures never
// reach the caller.
//
// # Failure model
//
// Nothing in this package returns an error to the discovery loop. Upstream
// failures become empty slices or not-found results and are logged. HTTP 429
// responses are retried with exponential backoff (base delay × 2^attempt)
// up to a small retry ceiling; every other non-success status is logged and
// dropped immediately.
package discovery
