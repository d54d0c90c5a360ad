// Package remote talks to pods: single-object CRUD requests and the
// concurrent multi-pod streams behind discover, channel listing and
// orphan recovery.
//
// # Error Propagation
//
// Single-object calls fail outright. Streams never fail as a whole: each
// pod that cannot be reached, answers with an unexpected status or sends a
// record that does not decode or validate contributes one in-band error
// tagged with the pod, while the other pods keep streaming. Invalid query
// modifiers and schemas fail every pod before anything is dispatched.
package remote

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// maxObjectBody bounds single-object response bodies.
const maxObjectBody = 16 << 20

// Client is the remote graffiti.Store.
type Client struct {
	compiler graffiti.SchemaCompiler
	recorder graffiti.Recorder
	sources  []string
	public   graffiti.Transport
	logger   *slog.Logger
}

var _ graffiti.Store = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRecorder mirrors acknowledged writes into r.
func WithRecorder(r graffiti.Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithSources sets the pods queried when a query names none.
func WithSources(sources ...string) Option {
	return func(c *Client) { c.sources = sources }
}

// WithPublicTransport sets the transport used for sessions that carry
// none. Requests through it are anonymous.
func WithPublicTransport(t graffiti.Transport) Option {
	return func(c *Client) { c.public = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client. compiler validates discovered objects.
func New(compiler graffiti.SchemaCompiler, opts ...Option) *Client {
	c := &Client{
		compiler: compiler,
		public:   http.DefaultClient,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sources returns the default federation.
func (c *Client) Sources() []string {
	return c.sources
}

// transport picks the session's transport, falling back to the public one.
func (c *Client) transport(sess graffiti.Session) graffiti.Transport {
	if sess.Transport != nil {
		return sess.Transport
	}
	return c.public
}

// sourcesFor resolves the pods a query goes to.
func (c *Client) sourcesFor(q graffiti.Query) []string {
	if len(q.Sources) > 0 {
		return q.Sources
	}
	return c.sources
}

// objectURL is <source>/<actor>/<name> with both path-escaped.
func objectURL(loc graffiti.Location) string {
	return strings.TrimSuffix(loc.Source, "/") + "/" + url.PathEscape(loc.Actor) + "/" + url.PathEscape(loc.Name)
}

// endpointURL is <source>/<endpoint>?<query>.
func endpointURL(source, endpoint string, query url.Values) string {
	u := strings.TrimSuffix(source, "/") + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request and reads the whole response body.
func do(ctx context.Context, t graffiti.Transport, method, target string, header http.Header, body []byte) (*http.Response, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, nil, graffiti.WrapError(graffiti.KindUsage, err, "%s %s", method, target)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := t.Do(req)
	if err != nil {
		return nil, nil, graffiti.WrapError(graffiti.KindConnectivity, err, "%s %s", method, target)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectBody))
	if err != nil {
		return nil, nil, graffiti.WrapError(graffiti.KindConnectivity, err, "%s %s: read body", method, target)
	}
	return resp, data, nil
}
