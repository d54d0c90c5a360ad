// Package local implements the local backing store: objects kept in a
// SQLite database on this device, addressed with the "local" source tag.
//
// Access rules mirror what a pod enforces. Only the actor named in a
// location may write it. Reads return objects the session actor may see,
// masked for non-owners.
package local

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/objstore"
	"github.com/graffiti-garden/implementation-federated/internal/patch"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

// Store is the local graffiti.Store.
type Store struct {
	db       *objstore.Store
	compiler graffiti.SchemaCompiler
	recorder graffiti.Recorder
	logger   *slog.Logger
}

var _ graffiti.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRecorder mirrors acknowledged writes into r.
func WithRecorder(r graffiti.Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a local store over db.
func New(db *objstore.Store, compiler graffiti.SchemaCompiler, opts ...Option) *Store {
	s := &Store{
		db:       db,
		compiler: compiler,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores obj, validated against schema, and returns the replaced state.
func (s *Store) Put(ctx context.Context, obj graffiti.Object, schema graffiti.Schema, sess graffiti.Session) (graffiti.Object, error) {
	if obj.Source == "" {
		obj.Source = graffiti.LocalSource
	}
	if err := s.checkWrite(obj.Location, sess); err != nil {
		return graffiti.Object{}, err
	}
	if err := checkValue(obj.Value); err != nil {
		return graffiti.Object{}, err
	}

	v, err := s.compiler.Compile(schema)
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, graffiti.LocalSource)
	}
	if err := v.Validate(obj.Value); err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, graffiti.LocalSource)
	}

	res, err := s.db.Put(ctx, obj, schema)
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, graffiti.LocalSource)
	}
	s.record(res)
	s.logger.Debug("local put", "location", obj.Location.String(), "lastModified", res.Current.LastModified)
	return res.Previous, nil
}

// Get returns the latest state at loc. A deleted object comes back as its
// tombstone. Objects the session may not see are reported as not found.
func (s *Store) Get(ctx context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	obj, err := s.db.Get(ctx, loc)
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, graffiti.LocalSource)
	}
	if !obj.VisibleTo(sess.Actor) {
		return graffiti.Object{}, graffiti.WithSource(
			graffiti.NewError(graffiti.KindNotFound, "no object at %s", loc), graffiti.LocalSource)
	}
	return obj.Mask(sess.Actor, nil), nil
}

// Patch applies p to the live object at loc and returns the replaced state.
func (s *Store) Patch(ctx context.Context, p graffiti.Patch, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	if err := p.Validate(); err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, graffiti.LocalSource)
	}
	if err := s.checkWrite(loc, sess); err != nil {
		return graffiti.Object{}, err
	}

	res, err := s.db.Update(ctx, loc, func(cur graffiti.Object, schema graffiti.Schema) (graffiti.Object, error) {
		v, err := s.compiler.Compile(schema)
		if err != nil {
			return graffiti.Object{}, err
		}
		return patch.Apply(cur, p, v)
	})
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, graffiti.LocalSource)
	}
	s.record(res)
	s.logger.Debug("local patch", "location", loc.String(), "lastModified", res.Current.LastModified)
	return res.Previous, nil
}

// Delete tombstones the live object at loc and returns it.
func (s *Store) Delete(ctx context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	if err := s.checkWrite(loc, sess); err != nil {
		return graffiti.Object{}, err
	}
	res, err := s.db.Delete(ctx, loc)
	if err != nil {
		return graffiti.Object{}, graffiti.WithSource(err, graffiti.LocalSource)
	}
	s.record(res)
	s.logger.Debug("local delete", "location", loc.String(), "lastModified", res.Previous.LastModified)
	return res.Previous, nil
}

// Discover streams the local objects answering q, as the session actor
// sees them.
func (s *Store) Discover(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	if err := q.Validate(); err != nil {
		return failed[graffiti.Object](ctx, err)
	}
	m, err := graffiti.NewMatcher(s.compiler, q, sess.Actor)
	if err != nil {
		return failed[graffiti.Object](ctx, err)
	}

	return q.Window(ctx, stream.New(ctx, func(ctx context.Context, yield func(stream.Result[graffiti.Object]) bool) {
		objects, err := s.db.Discover(ctx, q.Channels, q.IfModifiedSince)
		if err != nil {
			yield(stream.Result[graffiti.Object]{Err: graffiti.WithSource(err, graffiti.LocalSource), Source: graffiti.LocalSource})
			return
		}
		for _, obj := range objects {
			masked, ok := m.Match(obj)
			if !ok {
				continue
			}
			if !yield(stream.Result[graffiti.Object]{Value: masked, Source: graffiti.LocalSource}) {
				return
			}
		}
	}))
}

// RecoverOrphans streams the session actor's local objects that carry no
// channels.
func (s *Store) RecoverOrphans(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	if err := q.Validate(); err != nil {
		return failed[graffiti.Object](ctx, err)
	}
	if sess.Actor == "" {
		return failed[graffiti.Object](ctx, unauthorized())
	}

	return q.Window(ctx, stream.New(ctx, func(ctx context.Context, yield func(stream.Result[graffiti.Object]) bool) {
		objects, err := s.db.Orphans(ctx, sess.Actor, q.IfModifiedSince)
		if err != nil {
			yield(stream.Result[graffiti.Object]{Err: graffiti.WithSource(err, graffiti.LocalSource), Source: graffiti.LocalSource})
			return
		}
		for _, obj := range objects {
			if !yield(stream.Result[graffiti.Object]{Value: obj, Source: graffiti.LocalSource}) {
				return
			}
		}
	}))
}

// ChannelStats streams per-channel aggregates of the session actor's live
// local objects.
func (s *Store) ChannelStats(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.ChannelStat] {
	if err := q.Validate(); err != nil {
		return failed[graffiti.ChannelStat](ctx, err)
	}
	if sess.Actor == "" {
		return failed[graffiti.ChannelStat](ctx, unauthorized())
	}

	return stream.New(ctx, func(ctx context.Context, yield func(stream.Result[graffiti.ChannelStat]) bool) {
		stats, err := s.db.ChannelStats(ctx, sess.Actor, q.IfModifiedSince)
		if err != nil {
			yield(stream.Result[graffiti.ChannelStat]{Err: graffiti.WithSource(err, graffiti.LocalSource), Source: graffiti.LocalSource})
			return
		}
		for _, st := range stats {
			if !yield(stream.Result[graffiti.ChannelStat]{Value: st, Source: graffiti.LocalSource}) {
				return
			}
		}
	})
}

// checkWrite enforces that only the location's actor writes it.
func (s *Store) checkWrite(loc graffiti.Location, sess graffiti.Session) error {
	if !loc.IsLocal() {
		return graffiti.WithSource(graffiti.NewError(graffiti.KindUsage, "%s is not a local location", loc), graffiti.LocalSource)
	}
	if sess.Actor == "" {
		return graffiti.WithSource(unauthorized(), graffiti.LocalSource)
	}
	if sess.Actor != loc.Actor {
		return graffiti.WithSource(
			graffiti.NewError(graffiti.KindForbidden, "%s may not write objects of %s", sess.Actor, loc.Actor),
			graffiti.LocalSource)
	}
	return nil
}

func (s *Store) record(res objstore.WriteResult) {
	if s.recorder != nil {
		s.recorder.RecordWrite(res.Previous, res.Current)
	}
}

func failed[T any](ctx context.Context, err error) *stream.Stream[T] {
	return stream.Errors[T](ctx, graffiti.WithSource(err, graffiti.LocalSource), graffiti.LocalSource)
}

func unauthorized() error {
	return graffiti.NewError(graffiti.KindUnauthorized, "an actor is required")
}

// checkValue requires a JSON document other than null.
func checkValue(value json.RawMessage) error {
	if len(value) == 0 || !json.Valid(value) {
		return graffiti.WithSource(graffiti.NewError(graffiti.KindUsage, "value must be a JSON document"), graffiti.LocalSource)
	}
	if string(value) == "null" {
		return graffiti.WithSource(graffiti.NewError(graffiti.KindUsage, "value must not be null"), graffiti.LocalSource)
	}
	return nil
}
