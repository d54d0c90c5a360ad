// Package engine implements the synchronization engine.
//
// The engine is what applications talk to. It routes every call through a
// graffiti.Store (normally a *router.Router) and keeps a cache.Cache as its
// view of the federation.
//
// ARCHITECTURE:
//
// Write Path:
// 1. Put/Patch/Delete go to the store the router selects
// 2. The store acknowledges and records the write into the cache
// 3. The cache publishes the accepted states to its watchers
//
// A write is never visible in the view before its store acknowledges it.
// The stores, not the engine, hold the cache as their graffiti.Recorder,
// since only they know the acknowledged state.
//
// Read Path:
// Get, Discover and RecoverOrphans observe every fetched state into the
// cache. An observation wins only with a strictly greater lastModified, so
// a stale fetch never resurrects a state the view has moved past.
//
// Continuous Streams:
// SynchronizeDiscover and SynchronizeGet subscribe to the cache before
// replaying it, then follow its change feed until cancelled. Each location
// is yielded at most once per state. A fetch from the stores runs alongside
// and feeds the cache, so remote confirmations arrive through the same
// feed as local writes.
//
// Thread-safety: all methods are safe for concurrent use.
package engine
