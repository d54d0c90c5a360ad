package engine

import (
	"context"
	"sync"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

// SyncResult is the outcome of re-fetching one location from one source.
type SyncResult struct {
	Location graffiti.Location
	Object   graffiti.Object

	// Accepted reports whether the fetched state replaced the cached one.
	Accepted bool

	Err error
}

// Synchronize re-fetches every location concurrently and reconciles each
// answer with the view. When sources is non-empty each location is fetched
// from every one of them instead of its own source. Results are in
// location-major order.
func (e *Engine) Synchronize(ctx context.Context, locs []graffiti.Location, sources []string, sess graffiti.Session) []SyncResult {
	var targets []graffiti.Location
	for _, loc := range locs {
		if len(sources) == 0 {
			targets = append(targets, loc)
			continue
		}
		for _, src := range sources {
			l := loc
			l.Source = src
			targets = append(targets, l)
		}
	}

	results := make([]SyncResult, len(targets))
	var wg sync.WaitGroup
	for i, loc := range targets {
		wg.Go(func() {
			obj, err := e.store.Get(ctx, loc, sess)
			res := SyncResult{Location: loc, Object: obj, Err: err}
			if err == nil {
				res.Accepted = e.observe(obj)
			}
			results[i] = res
		})
	}
	wg.Wait()

	accepted, failed := 0, 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Accepted:
			accepted++
		}
	}
	e.logger.Info("synchronized", "fetched", len(results), "accepted", accepted, "failed", failed)
	return results
}

// SynchronizeDiscover is the continuous form of Discover. It yields the
// cached states matching q, then every matching change the view accepts,
// until ctx is done or the stream is cancelled. A fetch from the store runs
// alongside; its objects reach the caller through the view and its
// failures are yielded in-band.
//
// Tombstones are yielded for locations already yielded, so the caller can
// drop them, and for every location when q carries IfModifiedSince.
func (e *Engine) SynchronizeDiscover(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	if err := q.Validate(); err != nil {
		return stream.Errors[graffiti.Object](ctx, err, graffiti.LocalSource)
	}
	m, err := graffiti.NewMatcher(e.compiler, q, sess.Actor)
	if err != nil {
		return stream.Errors[graffiti.Object](ctx, err, graffiti.LocalSource)
	}
	inner := q.Unwindowed()

	sub := e.cache.Watch()
	view := stream.New(ctx, func(ctx context.Context, yield func(stream.Result[graffiti.Object]) bool) {
		defer sub.Close()
		seen := versions{}

		for r := range e.cache.Replay(ctx, inner, sess.Actor).All() {
			if r.Err == nil && !seen.fresh(r.Value) {
				continue
			}
			if !yield(r) {
				return
			}
		}

		for {
			obj, err := sub.Next(ctx)
			if err != nil {
				return
			}
			masked, ok := m.Match(obj)
			if !ok {
				continue
			}
			if masked.Tombstone && q.IfModifiedSince == nil && !seen.has(masked.Location) {
				continue
			}
			if !seen.fresh(masked) {
				continue
			}
			if !yield(stream.Result[graffiti.Object]{Value: masked, Source: masked.Source}) {
				return
			}
		}
	})

	fetch := stream.Filter(ctx, e.store.Discover(ctx, inner, sess), func(r stream.Result[graffiti.Object]) (stream.Result[graffiti.Object], bool) {
		if r.Err != nil {
			e.logger.Debug("discover fetch failed", "source", r.Source, "error", r.Err)
			return r, true
		}
		e.observe(r.Value)
		return r, false
	})

	return q.Window(ctx, stream.Merge(ctx, view, fetch))
}

// SynchronizeGet is the continuous form of Get: the cached state, then
// every newer state the view settles on for loc, until ctx is done or the
// stream is cancelled.
// A failed fetch is yielded in-band and the stream keeps following the
// view.
func (e *Engine) SynchronizeGet(ctx context.Context, loc graffiti.Location, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	sub := e.cache.Watch()
	return stream.New(ctx, func(ctx context.Context, yield func(stream.Result[graffiti.Object]) bool) {
		defer sub.Close()
		seen := versions{}

		emit := func(obj graffiti.Object) bool {
			if obj.Location != loc || !obj.VisibleTo(sess.Actor) || !seen.fresh(obj) {
				return true
			}
			return yield(stream.Result[graffiti.Object]{Value: obj.Mask(sess.Actor, nil), Source: obj.Source})
		}

		if obj, ok := e.cache.Get(loc); ok && !emit(obj) {
			return
		}
		if _, err := e.Get(ctx, loc, sess); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !yield(stream.Result[graffiti.Object]{Err: err, Source: loc.Source}) {
				return
			}
		}

		for {
			change, err := sub.Next(ctx)
			if err != nil {
				return
			}
			if change.Location != loc {
				continue
			}
			// A write publishes the replaced state first; the view
			// already holds the outcome.
			if obj, ok := e.cache.Get(loc); ok && !emit(obj) {
				return
			}
		}
	})
}

// versions tracks the newest state yielded per location.
type versions map[graffiti.Location]int64

// version orders the states of one location: a greater lastModified wins,
// and at the same instant a live state outranks a tombstone.
func version(obj graffiti.Object) int64 {
	v := obj.LastModified * 2
	if !obj.Tombstone {
		v++
	}
	return v
}

func (s versions) has(loc graffiti.Location) bool {
	_, ok := s[loc]
	return ok
}

// fresh records obj and reports whether it is newer than anything yielded
// for its location.
func (s versions) fresh(obj graffiti.Object) bool {
	v := version(obj)
	if last, ok := s[obj.Location]; ok && v <= last {
		return false
	}
	s[obj.Location] = v
	return true
}
