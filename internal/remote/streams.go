package remote

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
	"github.com/graffiti-garden/implementation-federated/internal/wire"
)

// Discover asks every pod for objects answering q and merges their
// answers as they arrive. Records are checked against the query and masked
// for the session actor; skip and limit count live objects over the merged
// order.
func (c *Client) Discover(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	sources := c.sourcesFor(q)
	if err := q.Validate(); err != nil {
		return failAll[graffiti.Object](ctx, err, sources)
	}
	m, err := graffiti.NewMatcher(c.compiler, q, sess.Actor)
	if err != nil {
		return failAll[graffiti.Object](ctx, err, sources)
	}

	params := sinceParams(q.IfModifiedSince)
	params.Set("channels", wire.EncodeList(q.Channels))
	if len(q.Schema) > 0 {
		params.Set("schema", string(q.Schema))
	}

	merged := fanOut(ctx, c.transport(sess), sources, "discover", params,
		func(source string) wire.DecodeFunc[graffiti.Object] {
			decode := wire.DecodeObject(source)
			return func(line []byte) (graffiti.Object, error) {
				obj, err := decode(line)
				if err != nil {
					return graffiti.Object{}, err
				}
				if err := m.Check(obj); err != nil {
					return graffiti.Object{}, err
				}
				return m.Mask(obj), nil
			}
		})
	return q.Window(ctx, merged)
}

// RecoverOrphans streams the session actor's objects that carry no
// channels, from every pod.
func (c *Client) RecoverOrphans(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	sources := c.sourcesFor(q)
	if err := q.Validate(); err != nil {
		return failAll[graffiti.Object](ctx, err, sources)
	}
	if sess.Transport == nil {
		return failAll[graffiti.Object](ctx, graffiti.NewError(graffiti.KindUnauthorized, "listing orphans requires a session"), sources)
	}

	merged := fanOut(ctx, sess.Transport, sources, "list-orphans", sinceParams(q.IfModifiedSince),
		func(source string) wire.DecodeFunc[graffiti.Object] {
			decode := wire.DecodeObject(source)
			return func(line []byte) (graffiti.Object, error) {
				obj, err := decode(line)
				if err != nil {
					return graffiti.Object{}, err
				}
				if len(obj.Channels) > 0 {
					return graffiti.Object{}, graffiti.NewError(graffiti.KindProtocol, "orphan %s has channels", obj.Location)
				}
				if !q.ModifiedAfterSince(obj.LastModified) {
					return graffiti.Object{}, graffiti.NewError(graffiti.KindProtocol, "orphan %s is not modified after %d", obj.Location, *q.IfModifiedSince)
				}
				return obj, nil
			}
		})
	return q.Window(ctx, merged)
}

// ListOrphans is RecoverOrphans over the default federation.
func (c *Client) ListOrphans(ctx context.Context, since *int64, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	return c.RecoverOrphans(ctx, graffiti.Query{IfModifiedSince: since}, sess)
}

// ChannelStats streams every pod's per-channel aggregates of the session
// actor's objects.
func (c *Client) ChannelStats(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.ChannelStat] {
	sources := c.sourcesFor(q)
	if err := q.Validate(); err != nil {
		return failAll[graffiti.ChannelStat](ctx, err, sources)
	}
	if sess.Transport == nil {
		return failAll[graffiti.ChannelStat](ctx, graffiti.NewError(graffiti.KindUnauthorized, "listing channels requires a session"), sources)
	}

	return fanOut(ctx, sess.Transport, sources, "list-channels", sinceParams(q.IfModifiedSince),
		func(string) wire.DecodeFunc[graffiti.ChannelStat] {
			return func(line []byte) (graffiti.ChannelStat, error) {
				st, err := wire.DecodeChannelStat(line)
				if err != nil {
					return graffiti.ChannelStat{}, err
				}
				if !q.ModifiedAfterSince(st.LastModified) {
					return graffiti.ChannelStat{}, graffiti.NewError(graffiti.KindProtocol, "channel %q is not modified after %d", st.Channel, *q.IfModifiedSince)
				}
				return st, nil
			}
		})
}

// ListChannels is ChannelStats over the default federation.
func (c *Client) ListChannels(ctx context.Context, since *int64, sess graffiti.Session) *stream.Stream[graffiti.ChannelStat] {
	return c.ChannelStats(ctx, graffiti.Query{IfModifiedSince: since}, sess)
}

func sinceParams(since *int64) url.Values {
	params := url.Values{}
	if since != nil {
		params.Set("ifModifiedSince", strconv.FormatInt(*since, 10))
	}
	return params
}

// failAll yields err once per source without contacting any of them.
func failAll[T any](ctx context.Context, err error, sources []string) *stream.Stream[T] {
	results := make([]stream.Result[T], 0, len(sources))
	for _, src := range sources {
		results = append(results, stream.Result[T]{Err: graffiti.WithSource(err, src), Source: src})
	}
	return stream.FromSlice(ctx, results)
}

// fanOut opens one record stream per pod and merges them first-ready-
// first-out.
func fanOut[T any](ctx context.Context, t graffiti.Transport, sources []string, endpoint string, params url.Values, decode func(source string) wire.DecodeFunc[T]) *stream.Stream[T] {
	if len(sources) == 0 {
		return stream.Empty[T](ctx)
	}
	subs := make([]*stream.Stream[T], len(sources))
	for i, src := range sources {
		subs[i] = podStream(ctx, t, src, endpointURL(src, endpoint, params), decode(src))
	}
	return stream.Merge(ctx, subs...)
}

// podStream streams one pod's records. Any failure to get a record stream
// going becomes a single error result.
func podStream[T any](ctx context.Context, t graffiti.Transport, source, target string, decode wire.DecodeFunc[T]) *stream.Stream[T] {
	return stream.New(ctx, func(ctx context.Context, yield func(stream.Result[T]) bool) {
		fail := func(err error) {
			yield(stream.Result[T]{Err: graffiti.WithSource(err, source), Source: source})
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			fail(graffiti.WrapError(graffiti.KindUsage, err, "GET %s", target))
			return
		}
		req.Header.Set("Accept", "application/x-ndjson")

		resp, err := t.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				fail(graffiti.WrapError(graffiti.KindConnectivity, err, "GET %s", target))
			}
			return
		}

		switch resp.StatusCode {
		case http.StatusNoContent:
			resp.Body.Close()
			return
		case http.StatusOK:
		default:
			text, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()
			fail(graffiti.NewError(graffiti.KindProtocol, "GET %s: unexpected status %d: %s",
				target, resp.StatusCode, strings.TrimSpace(string(text))))
			return
		}

		records := wire.Stream(ctx, resp.Body, source, decode)
		defer records.Cancel()
		for {
			r, ok := records.Next()
			if !ok || !yield(r) {
				return
			}
		}
	})
}
