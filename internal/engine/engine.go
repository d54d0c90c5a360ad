package engine

import (
	"context"
	"log/slog"

	"github.com/graffiti-garden/implementation-federated/internal/cache"
	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

// Engine reconciles a store's answers with the local change cache.
type Engine struct {
	store    graffiti.Store
	cache    *cache.Cache
	compiler graffiti.SchemaCompiler
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for reconciliation decisions.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over store. c must be the recorder the store's
// backing stores report acknowledged writes to.
func New(store graffiti.Store, c *cache.Cache, compiler graffiti.SchemaCompiler, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		cache:    c,
		compiler: compiler,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache returns the engine's view.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Put stores obj and returns the replaced state.
func (e *Engine) Put(ctx context.Context, obj graffiti.Object, schema graffiti.Schema, sess graffiti.Session) (graffiti.Object, error) {
	prev, err := e.store.Put(ctx, obj, schema, sess)
	if err != nil {
		e.logger.Debug("put failed", "location", obj.Location.String(), "error", err)
		return graffiti.Object{}, err
	}
	return prev, nil
}

// Patch applies p at loc and returns the replaced state.
func (e *Engine) Patch(ctx context.Context, p graffiti.Patch, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	prev, err := e.store.Patch(ctx, p, loc, sess)
	if err != nil {
		e.logger.Debug("patch failed", "location", loc.String(), "error", err)
		return graffiti.Object{}, err
	}
	return prev, nil
}

// Delete tombstones the object at loc and returns it.
func (e *Engine) Delete(ctx context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	prev, err := e.store.Delete(ctx, loc, sess)
	if err != nil {
		e.logger.Debug("delete failed", "location", loc.String(), "error", err)
		return graffiti.Object{}, err
	}
	return prev, nil
}

// Get fetches loc and observes the answer into the view.
func (e *Engine) Get(ctx context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	obj, err := e.store.Get(ctx, loc, sess)
	if err != nil {
		return graffiti.Object{}, err
	}
	e.observe(obj)
	return obj, nil
}

// Discover streams the store's answer to q, observing every object into
// the view as it passes.
func (e *Engine) Discover(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	return e.observing(ctx, e.store.Discover(ctx, q, sess))
}

// RecoverOrphans streams the session actor's objects without channels.
func (e *Engine) RecoverOrphans(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	return e.observing(ctx, e.store.RecoverOrphans(ctx, q, sess))
}

// ChannelStats streams per-channel aggregates of the session actor's
// objects.
func (e *Engine) ChannelStats(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.ChannelStat] {
	return e.store.ChannelStats(ctx, q, sess)
}

func (e *Engine) observing(ctx context.Context, s *stream.Stream[graffiti.Object]) *stream.Stream[graffiti.Object] {
	return stream.Filter(ctx, s, func(r stream.Result[graffiti.Object]) (stream.Result[graffiti.Object], bool) {
		if r.Err == nil {
			e.observe(r.Value)
		}
		return r, true
	})
}

// observe offers obj to the view and logs the decision.
func (e *Engine) observe(obj graffiti.Object) bool {
	accepted := e.cache.Observe(obj)
	e.logger.Debug("reconcile",
		"location", obj.Location.String(),
		"lastModified", obj.LastModified,
		"tombstone", obj.Tombstone,
		"accepted", accepted)
	return accepted
}
