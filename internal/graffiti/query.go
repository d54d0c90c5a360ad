package graffiti

import (
	"context"

	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

// Query selects objects for Discover, RecoverOrphans and ChannelStats.
type Query struct {
	Channels []string
	Schema   Schema

	// Sources overrides the pods queried. Empty means the configured
	// federation.
	Sources []string

	Skip            *int
	Limit           *int
	IfModifiedSince *int64
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithSkip drops the first n live matches.
func WithSkip(n int) QueryOption {
	return func(q *Query) { q.Skip = &n }
}

// WithLimit ends the stream after n live matches.
func WithLimit(n int) QueryOption {
	return func(q *Query) { q.Limit = &n }
}

// WithIfModifiedSince keeps only objects modified strictly after ts.
func WithIfModifiedSince(ts int64) QueryOption {
	return func(q *Query) { q.IfModifiedSince = &ts }
}

// WithSources restricts the query to the given pods.
func WithSources(sources ...string) QueryOption {
	return func(q *Query) { q.Sources = sources }
}

// NewQuery builds a Query over channels. Channels are normalized.
func NewQuery(channels []string, schema Schema, opts ...QueryOption) Query {
	q := Query{
		Channels: NormalizeChannels(channels),
		Schema:   schema,
	}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Validate checks the modifiers. It never inspects the schema; compiling it
// is the caller's job.
func (q Query) Validate() error {
	if q.Skip != nil && *q.Skip < 0 {
		return NewError(KindUsage, "skip must be a non-negative integer, got %d", *q.Skip)
	}
	if q.Limit != nil && *q.Limit <= 0 {
		return NewError(KindUsage, "limit must be a positive integer, got %d", *q.Limit)
	}
	return nil
}

// ModifiedAfterSince reports whether lastModified passes IfModifiedSince.
func (q Query) ModifiedAfterSince(lastModified int64) bool {
	return q.IfModifiedSince == nil || lastModified > *q.IfModifiedSince
}

// Unwindowed returns a copy without skip and limit, for inner stores whose
// results are windowed by the caller.
func (q Query) Unwindowed() Query {
	c := q
	c.Skip = nil
	c.Limit = nil
	return c
}

// Window applies q's skip and limit to s. Only live objects count towards
// either; errors and tombstones pass through.
func (q Query) Window(ctx context.Context, s *stream.Stream[Object]) *stream.Stream[Object] {
	if q.Skip == nil && q.Limit == nil {
		return s
	}
	skip, limit := 0, -1
	if q.Skip != nil {
		skip = *q.Skip
	}
	if q.Limit != nil {
		limit = *q.Limit
	}
	return stream.Window(ctx, s, skip, limit, func(r stream.Result[Object]) bool {
		return r.Err == nil && !r.Value.Tombstone
	})
}
