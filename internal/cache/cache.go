// Package cache keeps the latest known state of every location this
// process has written or observed.
//
// The cache is the engine's view of the federation: writes are recorded
// once a store acknowledges them, reads and discovers feed observations
// in, and the continuous streams replay it and then follow its change feed.
//
// # Conflict Resolution
//
// An observation replaces the cached state only when its lastModified is
// strictly greater, or when it is live and the cached state is the
// tombstone left at the same instant. Acknowledged writes are
// authoritative and replace any state that is not newer.
//
// A non-owner receives a masked copy: channels cut down to the ones it
// asked for and an allowed list naming only itself. Two fetches of the
// same state through different queries therefore tie on lastModified
// while carrying different parts of it. At a tie the cache keeps the
// accepted value and merges the new copy's channels and allowed actors
// into it, so that later queries through any of those channels match.
//
// # Change Feed
//
// Every accepted state is published to subscribers in acceptance order.
// A write publishes the tombstoned previous state before the new one, so
// that a subscriber filtering by channel sees the object leave channels it
// no longer carries.
package cache

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

// Cache maps each Location to its latest known state.
//
// Thread-safety: all methods are safe for concurrent use. Updates to one
// location are serialized; different locations proceed in parallel.
type Cache struct {
	compiler graffiti.SchemaCompiler
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[graffiti.Location]*entry

	subMu sync.RWMutex
	subs  map[*Subscription]struct{}
}

type entry struct {
	mu    sync.Mutex
	obj   graffiti.Object
	valid bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for rejected observations.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates an empty cache. compiler validates Replay schemas.
func New(compiler graffiti.SchemaCompiler, opts ...Option) *Cache {
	c := &Cache{
		compiler: compiler,
		logger:   slog.Default(),
		entries:  make(map[graffiti.Location]*entry),
		subs:     make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) entry(loc graffiti.Location) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[loc]
	if !ok {
		e = &entry{}
		c.entries[loc] = e
	}
	return e
}

// RecordWrite records an acknowledged write. previous is the replaced
// state as returned by the store (tombstoned); current is the new state,
// nil for deletes.
//
// Implements graffiti.Recorder.
func (c *Cache) RecordWrite(previous graffiti.Object, current *graffiti.Object) {
	e := c.entry(previous.Location)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.valid && e.obj.LastModified > previous.LastModified {
		c.logger.Debug("stale write acknowledgement ignored",
			"location", previous.Location.String(),
			"cached", e.obj.LastModified,
			"acknowledged", previous.LastModified)
		return
	}

	prev := previous.Clone()
	prev.Tombstone = true
	e.obj, e.valid = prev, true
	c.publish(prev)

	if current != nil {
		cur := current.Clone()
		e.obj = cur
		c.publish(cur)
	}
}

// Observe offers a state fetched from a store. It is accepted when
// strictly newer than the cached state, when it is the live state written
// at the instant the cached tombstone was replaced, or when it is the same
// state and reveals channels or allowed actors the cached copy lacks. It
// reports whether the cached state changed.
func (c *Cache) Observe(obj graffiti.Object) bool {
	e := c.entry(obj.Location)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.valid {
		switch {
		case obj.LastModified < e.obj.LastModified:
			return false
		case obj.LastModified > e.obj.LastModified:
		case obj.Tombstone == e.obj.Tombstone:
			if !merge(&e.obj, obj) {
				return false
			}
			c.publish(e.obj)
			return true
		case obj.Tombstone:
			return false
		}
	}
	e.obj, e.valid = obj.Clone(), true
	c.publish(e.obj)
	return true
}

// merge adds the channels and allowed actors of other, a copy of the same
// state, to dst and reports whether dst grew. A public state has no
// allowed list to merge.
func merge(dst *graffiti.Object, other graffiti.Object) bool {
	grew := false
	for _, ch := range other.Channels {
		if !slices.Contains(dst.Channels, ch) {
			dst.Channels = append(dst.Channels, ch)
			grew = true
		}
	}
	if dst.Allowed == nil || other.Allowed == nil {
		return grew
	}
	for _, actor := range other.Allowed {
		if !slices.Contains(dst.Allowed, actor) {
			dst.Allowed = append(dst.Allowed, actor)
			grew = true
		}
	}
	return grew
}

// Get returns the cached state at loc.
func (c *Cache) Get(loc graffiti.Location) (graffiti.Object, bool) {
	c.mu.Lock()
	e, ok := c.entries[loc]
	c.mu.Unlock()
	if !ok {
		return graffiti.Object{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.valid {
		return graffiti.Object{}, false
	}
	return e.obj.Clone(), true
}

// Len returns the number of cached locations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Replay streams the cached states matching q as viewer would discover
// them, oldest first. Tombstones are replayed only when q carries
// IfModifiedSince. An invalid schema yields a single error result.
func (c *Cache) Replay(ctx context.Context, q graffiti.Query, viewer string) *stream.Stream[graffiti.Object] {
	m, err := graffiti.NewMatcher(c.compiler, q, viewer)
	if err != nil {
		return stream.Errors[graffiti.Object](ctx, err, graffiti.LocalSource)
	}

	c.mu.Lock()
	entries := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	var snapshot []graffiti.Object
	for _, e := range entries {
		e.mu.Lock()
		obj, valid := e.obj.Clone(), e.valid
		e.mu.Unlock()
		if !valid || (obj.Tombstone && q.IfModifiedSince == nil) {
			continue
		}
		if masked, ok := m.Match(obj); ok {
			snapshot = append(snapshot, masked)
		}
	}
	slices.SortFunc(snapshot, func(a, b graffiti.Object) int {
		return cmp.Or(
			cmp.Compare(a.LastModified, b.LastModified),
			strings.Compare(a.Location.String(), b.Location.String()),
		)
	})

	results := make([]stream.Result[graffiti.Object], 0, len(snapshot))
	for _, obj := range snapshot {
		results = append(results, stream.Result[graffiti.Object]{Value: obj, Source: obj.Source})
	}
	return stream.FromSlice(ctx, results)
}

// Watch subscribes to every state accepted from now on. The subscription
// must be closed when no longer needed.
func (c *Cache) Watch() *Subscription {
	sub := &Subscription{cache: c, queue: newChangeQueue()}
	c.subMu.Lock()
	c.subs[sub] = struct{}{}
	c.subMu.Unlock()
	return sub
}

// publish is called with the location's entry lock held, which keeps each
// location's changes in order on every queue.
func (c *Cache) publish(obj graffiti.Object) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for sub := range c.subs {
		sub.queue.Enqueue(obj.Clone())
	}
}

func (c *Cache) unsubscribe(sub *Subscription) {
	c.subMu.Lock()
	delete(c.subs, sub)
	c.subMu.Unlock()
}
