// Package router composes the local backing store and the remote pods
// behind one graffiti.Store.
//
// Authority is decided per call. Locations whose source is not a network
// address belong to the local store and never touch the network. Writes,
// orphan recovery and channel statistics follow the session: a session is
// remote-capable when its actor is a network identity and it carries a
// transport. Discover always asks both stores and yields every local
// result before any remote one.
package router

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

// NameGenerator picks names for objects put without one.
type NameGenerator interface {
	NewName() string
}

// uuidNames generates time-ordered UUIDv7 names.
type uuidNames struct{}

func (uuidNames) NewName() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Router is a graffiti.Store over a local and a remote store.
type Router struct {
	local  graffiti.Store
	remote graffiti.Store
	names  NameGenerator
	logger *slog.Logger
}

var _ graffiti.Store = (*Router)(nil)

// Option configures a Router.
type Option func(*Router)

// WithNames replaces the UUIDv7 name generator.
func WithNames(g NameGenerator) Option {
	return func(r *Router) { r.names = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a router. remote is typically a *remote.Client whose public
// transport serves sessions that are not remote-capable.
func New(local, remote graffiti.Store, opts ...Option) *Router {
	r := &Router{
		local:  local,
		remote: remote,
		names:  uuidNames{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RemoteCapable reports whether sess may act on pods on its own behalf.
func RemoteCapable(sess graffiti.Session) bool {
	return sess.Transport != nil && graffiti.IsNetworkAddress(sess.Actor)
}

// publicView is the session the remote store sees for sess: sessions that
// are not remote-capable read anonymously.
func publicView(sess graffiti.Session) graffiti.Session {
	if RemoteCapable(sess) {
		return sess
	}
	return graffiti.Session{}
}

// Put stores obj. An empty name is generated; an empty source is the
// session's home pod for remote-capable sessions and the local store
// otherwise.
func (r *Router) Put(ctx context.Context, obj graffiti.Object, schema graffiti.Schema, sess graffiti.Session) (graffiti.Object, error) {
	if obj.Name == "" {
		obj.Name = r.names.NewName()
	}
	if obj.Actor == "" {
		obj.Actor = sess.Actor
	}
	if obj.Source == "" {
		if RemoteCapable(sess) {
			if sess.Source == "" {
				return graffiti.Object{}, graffiti.NewError(graffiti.KindUsage, "session %s has no home pod", sess.Actor)
			}
			obj.Source = sess.Source
		} else {
			obj.Source = graffiti.LocalSource
		}
	}

	target, err := r.writeTarget(obj.Location, sess)
	if err != nil {
		return graffiti.Object{}, err
	}
	r.logger.Debug("route put", "location", obj.Location.String(), "remote", target == r.remote)
	return target.Put(ctx, obj, schema, sess)
}

// Get reads loc from the store that holds it.
func (r *Router) Get(ctx context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	if loc.IsLocal() {
		return r.local.Get(ctx, loc, sess)
	}
	return r.remote.Get(ctx, loc, publicView(sess))
}

// Patch applies p at loc.
func (r *Router) Patch(ctx context.Context, p graffiti.Patch, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	target, err := r.writeTarget(loc, sess)
	if err != nil {
		return graffiti.Object{}, err
	}
	return target.Patch(ctx, p, loc, sess)
}

// Delete tombstones the object at loc.
func (r *Router) Delete(ctx context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	target, err := r.writeTarget(loc, sess)
	if err != nil {
		return graffiti.Object{}, err
	}
	return target.Delete(ctx, loc, sess)
}

// writeTarget picks the store a write goes to. Local locations are always
// written locally; network locations need a remote-capable session.
func (r *Router) writeTarget(loc graffiti.Location, sess graffiti.Session) (graffiti.Store, error) {
	if loc.IsLocal() {
		return r.local, nil
	}
	if !RemoteCapable(sess) {
		return nil, graffiti.NewError(graffiti.KindUsage, "cannot write %s through a local-only session", loc)
	}
	return r.remote, nil
}

// Discover queries both stores concurrently. Local results come first, then
// remote ones; skip and limit count over the combined order.
func (r *Router) Discover(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	if q.Validate() != nil {
		// Each store fails the query for every one of its sources.
		return stream.Concat(ctx, r.local.Discover(ctx, q, sess), r.remote.Discover(ctx, q, publicView(sess)))
	}
	inner := q.Unwindowed()
	local := r.local.Discover(ctx, inner, sess)
	remote := r.remote.Discover(ctx, inner, publicView(sess))
	return q.Window(ctx, stream.Concat(ctx, local, remote))
}

// RecoverOrphans asks the store the session belongs to.
func (r *Router) RecoverOrphans(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	if RemoteCapable(sess) {
		return r.remote.RecoverOrphans(ctx, q, sess)
	}
	return r.local.RecoverOrphans(ctx, q, sess)
}

// ChannelStats asks the store the session belongs to.
func (r *Router) ChannelStats(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.ChannelStat] {
	if RemoteCapable(sess) {
		return r.remote.ChannelStats(ctx, q, sess)
	}
	return r.local.ChannelStats(ctx, q, sess)
}
