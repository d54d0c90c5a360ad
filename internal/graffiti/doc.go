// Package graffiti defines the data model shared by every backing store.
//
// This package contains the Location, Object, Patch, Session and Query types,
// the error kinds returned by stores, and the capability interfaces
// (Store, Transport, SchemaCompiler, Recorder) that the router, the remote
// adapter, the local store and the synchronization engine are composed from.
//
// Key constraints:
//   - At most one live object exists per Location; earlier states survive
//     only as tombstones.
//   - LastModified (unix milliseconds) is the sole ordering key. A state
//     replaces another only when its LastModified is strictly greater.
//   - Channels are NFC-normalized before they are stored or compared.
//
// graffiti imports only internal/stream; every other internal package may
// import graffiti.
package graffiti
