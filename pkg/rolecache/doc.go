// Package rolecache caches per-actor role snapshots for display.
//
// The cache exists so that a UI can render "what am I allowed to do" without
// a database round trip on every page. Entries live for at most the
// configured TTL and are dropped whenever the role mutation service changes a
// role, so a stale entry is bounded in time even if an invalidation is lost.
//
// Nothing that enforces access reads from this package. The guard and the
// decision engine always read role assignments from the store.
package rolecache
