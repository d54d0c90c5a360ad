// Package objstore provides SQLite-backed storage for versioned objects.
//
// It is shared by the local backing store and the reference pod. The store
// keeps the full state history of every location:
//   - objects: one row per state, at most one live row per location
//   - object_channels: channel memberships, used by discover and stats
//
// # Consistency
//
// Every write runs in one transaction. The new state's last_modified is
// strictly greater than any earlier state at the same location, and the
// replaced state is tombstoned with that same timestamp.
//
// Readers that pass ifModifiedSince receive tombstones as well as live
// objects; readers that don't only see live objects. Results are ordered by
// last_modified ASC with live rows before tombstones of the same instant,
// then by id.
//
// The store performs no access control. Callers decide who may write a
// location and who may see a row.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package objstore
