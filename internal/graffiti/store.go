package graffiti

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

// Transport sends one request and returns its response. *http.Client
// satisfies it. Authorized transports attach credentials themselves.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Store is the call surface shared by the local store, the remote adapter
// and the router that composes them.
type Store interface {
	// Put replaces the object at obj.Location and returns the previous
	// state, tombstoned.
	Put(ctx context.Context, obj Object, schema Schema, sess Session) (Object, error)

	// Get returns the current state at loc. A tombstone is returned only
	// when the store reports the object as gone.
	Get(ctx context.Context, loc Location, sess Session) (Object, error)

	// Patch applies p to the live object at loc and returns the previous
	// state, tombstoned.
	Patch(ctx context.Context, p Patch, loc Location, sess Session) (Object, error)

	// Delete tombstones the live object at loc and returns it.
	Delete(ctx context.Context, loc Location, sess Session) (Object, error)

	// Discover streams objects tagged with any of q.Channels that satisfy
	// q.Schema. Failures are reported in-band.
	Discover(ctx context.Context, q Query, sess Session) *stream.Stream[Object]

	// RecoverOrphans streams the session actor's objects with no channels.
	RecoverOrphans(ctx context.Context, q Query, sess Session) *stream.Stream[Object]

	// ChannelStats streams per-channel aggregates of the session actor's
	// live objects.
	ChannelStats(ctx context.Context, q Query, sess Session) *stream.Stream[ChannelStat]
}

// SchemaCompiler compiles a schema once for repeated validation. It fails
// with KindInvalidSchema when the schema itself is malformed.
type SchemaCompiler interface {
	Compile(schema Schema) (SchemaValidator, error)
}

// SchemaValidator validates documents against one compiled schema. It
// fails with KindSchemaMismatch when doc does not satisfy the schema.
type SchemaValidator interface {
	Validate(doc json.RawMessage) error
}

// Recorder receives the acknowledged effect of every write. current is nil
// for deletes.
type Recorder interface {
	RecordWrite(previous Object, current *Object)
}
