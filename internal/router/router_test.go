package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/local"
	"github.com/graffiti-garden/implementation-federated/internal/objstore"
	"github.com/graffiti-garden/implementation-federated/internal/remote"
	"github.com/graffiti-garden/implementation-federated/internal/schema"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
	"github.com/graffiti-garden/implementation-federated/internal/testutil"
)

const podURL = "https://pod.example"

var (
	alice      = graffiti.Session{Actor: "alice"}
	remoteUser = graffiti.Session{Actor: podURL + "/carol", Transport: http.DefaultClient, Source: podURL}
)

// fakeRemote records the calls routed to it.
type fakeRemote struct {
	mu       sync.Mutex
	calls    []string
	sessions []graffiti.Session
	queries  []graffiti.Query
	objects  []graffiti.Object
}

var _ graffiti.Store = (*fakeRemote)(nil)

func (f *fakeRemote) called(op string, sess graffiti.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	f.sessions = append(f.sessions, sess)
}

func (f *fakeRemote) Put(_ context.Context, obj graffiti.Object, _ graffiti.Schema, sess graffiti.Session) (graffiti.Object, error) {
	f.called("put", sess)
	return graffiti.Vacant(obj.Location, 1), nil
}

func (f *fakeRemote) Get(_ context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	f.called("get", sess)
	return graffiti.Object{Location: loc, Value: json.RawMessage(`{}`), Channels: []string{}, LastModified: 1}, nil
}

func (f *fakeRemote) Patch(_ context.Context, _ graffiti.Patch, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	f.called("patch", sess)
	return graffiti.Vacant(loc, 1), nil
}

func (f *fakeRemote) Delete(_ context.Context, loc graffiti.Location, sess graffiti.Session) (graffiti.Object, error) {
	f.called("delete", sess)
	return graffiti.Vacant(loc, 1), nil
}

func (f *fakeRemote) Discover(ctx context.Context, q graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	f.called("discover", sess)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if err := q.Validate(); err != nil {
		return stream.Errors[graffiti.Object](ctx, err, podURL)
	}
	results := make([]stream.Result[graffiti.Object], len(f.objects))
	for i, obj := range f.objects {
		results[i] = stream.Result[graffiti.Object]{Value: obj, Source: podURL}
	}
	return stream.FromSlice(ctx, results)
}

func (f *fakeRemote) RecoverOrphans(ctx context.Context, _ graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.Object] {
	f.called("orphans", sess)
	return stream.Empty[graffiti.Object](ctx)
}

func (f *fakeRemote) ChannelStats(ctx context.Context, _ graffiti.Query, sess graffiti.Session) *stream.Stream[graffiti.ChannelStat] {
	f.called("stats", sess)
	return stream.Empty[graffiti.ChannelStat](ctx)
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// refuseNetwork fails every request and counts them.
type refuseNetwork struct{ requests atomic.Int32 }

func (t *refuseNetwork) Do(*http.Request) (*http.Response, error) {
	t.requests.Add(1)
	return nil, errors.New("network disabled")
}

func newLocal(t *testing.T) *local.Store {
	t.Helper()
	db, err := objstore.Open(filepath.Join(t.TempDir(), "local.db"),
		objstore.WithClock(testutil.NewDeterministicClock(1000)))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return local.New(db, schema.NewCompiler())
}

func newRouter(t *testing.T, opts ...Option) (*Router, *fakeRemote) {
	t.Helper()
	rem := &fakeRemote{}
	return New(newLocal(t), rem, opts...), rem
}

func note(name, value string, channels ...string) graffiti.Object {
	if channels == nil {
		channels = []string{}
	}
	return graffiti.Object{
		Location: graffiti.Location{Name: name},
		Value:    json.RawMessage(value),
		Channels: channels,
	}
}

func remoteLoc(name string) graffiti.Location {
	return graffiti.Location{Actor: remoteUser.Actor, Source: podURL, Name: name}
}

func TestRemoteCapable(t *testing.T) {
	assert.True(t, RemoteCapable(remoteUser))
	assert.False(t, RemoteCapable(alice), "no transport, no network identity")
	assert.False(t, RemoteCapable(graffiti.Session{Actor: "alice", Transport: http.DefaultClient}))
	assert.False(t, RemoteCapable(graffiti.Session{Actor: remoteUser.Actor}))
}

func TestRouter_LocalOnlySessionStaysOffline(t *testing.T) {
	net := &refuseNetwork{}
	rem := remote.New(schema.NewCompiler(), remote.WithPublicTransport(net))
	r := New(newLocal(t), rem)
	ctx := context.Background()

	prev, err := r.Put(ctx, note("n1", `{"text":"hi"}`, "c"), nil, alice)
	require.NoError(t, err)
	assert.True(t, prev.Tombstone)

	loc := graffiti.Location{Actor: "alice", Source: graffiti.LocalSource, Name: "n1"}
	got, err := r.Get(ctx, loc, alice)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi"}`, string(got.Value))
	assert.Equal(t, []string{"c"}, got.Channels)

	_, err = r.Patch(ctx, graffiti.Patch{Value: []graffiti.PatchOp{{Op: "replace", Path: "/text", Value: json.RawMessage(`"bye"`)}}}, loc, alice)
	require.NoError(t, err)
	deleted, err := r.Delete(ctx, loc, alice)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"bye"}`, string(deleted.Value))

	assert.Equal(t, int32(0), net.requests.Load())
}

func TestRouter_PutGeneratesNames(t *testing.T) {
	r, _ := newRouter(t, WithNames(testutil.NewSequentialNames("note")))

	_, err := r.Put(context.Background(), note("", `{}`), nil, alice)
	require.NoError(t, err)

	got, err := r.Get(context.Background(), graffiti.Location{Actor: "alice", Source: graffiti.LocalSource, Name: "note-1"}, alice)
	require.NoError(t, err)
	assert.Equal(t, "note-1", got.Name)
}

func TestRouter_DefaultNamesAreUUIDv7(t *testing.T) {
	name := uuidNames{}.NewName()
	assert.Len(t, name, 36)
	assert.NotEqual(t, name, uuidNames{}.NewName())
}

func TestRouter_RemoteCapableWritesGoToTheHomePod(t *testing.T) {
	r, rem := newRouter(t)
	ctx := context.Background()

	prev, err := r.Put(ctx, note("n1", `{}`), nil, remoteUser)
	require.NoError(t, err)
	assert.Equal(t, remoteLoc("n1"), prev.Location)

	_, err = r.Patch(ctx, graffiti.Patch{Channels: []graffiti.PatchOp{{Op: "add", Path: "/-", Value: json.RawMessage(`"c"`)}}}, remoteLoc("n1"), remoteUser)
	require.NoError(t, err)
	_, err = r.Delete(ctx, remoteLoc("n1"), remoteUser)
	require.NoError(t, err)

	assert.Equal(t, []string{"put", "patch", "delete"}, rem.Calls())
}

func TestRouter_RemoteCapableSessionWithoutHomePod(t *testing.T) {
	r, rem := newRouter(t)
	sess := remoteUser
	sess.Source = ""

	_, err := r.Put(context.Background(), note("n1", `{}`), nil, sess)
	assert.ErrorIs(t, err, graffiti.ErrUsage)
	assert.Empty(t, rem.Calls())
}

func TestRouter_NetworkWriteThroughLocalSession(t *testing.T) {
	r, rem := newRouter(t)
	ctx := context.Background()

	obj := note("n1", `{}`)
	obj.Location = remoteLoc("n1")
	_, err := r.Put(ctx, obj, nil, alice)
	assert.ErrorIs(t, err, graffiti.ErrUsage)

	_, err = r.Delete(ctx, remoteLoc("n1"), alice)
	assert.ErrorIs(t, err, graffiti.ErrUsage)
	assert.Empty(t, rem.Calls())
}

func TestRouter_GetRoutesByLocation(t *testing.T) {
	r, rem := newRouter(t)
	ctx := context.Background()

	_, err := r.Get(ctx, graffiti.Location{Actor: "alice", Source: graffiti.LocalSource, Name: "missing"}, remoteUser)
	assert.ErrorIs(t, err, graffiti.ErrNotFound)
	assert.Empty(t, rem.Calls(), "local locations never reach the remote store")

	_, err = r.Get(ctx, remoteLoc("n1"), alice)
	require.NoError(t, err)
	_, err = r.Get(ctx, remoteLoc("n1"), remoteUser)
	require.NoError(t, err)

	require.Equal(t, []string{"get", "get"}, rem.Calls())
	assert.Equal(t, graffiti.Session{}, rem.sessions[0], "local-only sessions read anonymously")
	assert.Equal(t, remoteUser.Actor, rem.sessions[1].Actor)
}

func TestRouter_DiscoverYieldsLocalBeforeRemote(t *testing.T) {
	r, rem := newRouter(t)
	ctx := context.Background()
	for _, name := range []string{"l0", "l1"} {
		_, err := r.Put(ctx, note(name, `{}`, "c"), nil, alice)
		require.NoError(t, err)
	}
	for _, name := range []string{"r0", "r1"} {
		obj := note(name, `{}`, "c")
		obj.Location = remoteLoc(name)
		obj.LastModified = 5
		rem.objects = append(rem.objects, obj)
	}

	var names []string
	for res := range r.Discover(ctx, graffiti.NewQuery([]string{"c"}, nil), alice).All() {
		require.NoError(t, res.Err)
		names = append(names, res.Value.Name)
	}
	assert.Equal(t, []string{"l0", "l1", "r0", "r1"}, names)
}

func TestRouter_DiscoverWindowsTheCombinedStream(t *testing.T) {
	r, rem := newRouter(t)
	ctx := context.Background()
	for _, name := range []string{"l0", "l1"} {
		_, err := r.Put(ctx, note(name, `{}`, "c"), nil, alice)
		require.NoError(t, err)
	}
	for _, name := range []string{"r0", "r1"} {
		obj := note(name, `{}`, "c")
		obj.Location = remoteLoc(name)
		obj.LastModified = 5
		rem.objects = append(rem.objects, obj)
	}

	q := graffiti.NewQuery([]string{"c"}, nil, graffiti.WithSkip(1), graffiti.WithLimit(2))
	var names []string
	for res := range r.Discover(ctx, q, alice).All() {
		require.NoError(t, res.Err)
		names = append(names, res.Value.Name)
	}
	assert.Equal(t, []string{"l1", "r0"}, names)

	require.Len(t, rem.queries, 1)
	assert.Nil(t, rem.queries[0].Skip, "inner stores see the query without its window")
	assert.Nil(t, rem.queries[0].Limit)
}

func TestRouter_DiscoverInvalidQueryFailsEverySource(t *testing.T) {
	r, _ := newRouter(t)

	results := stream.Collect(r.Discover(context.Background(),
		graffiti.NewQuery([]string{"c"}, nil, graffiti.WithLimit(0)), alice))

	require.Len(t, results, 2)
	assert.Equal(t, graffiti.LocalSource, results[0].Source)
	assert.Equal(t, podURL, results[1].Source)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, graffiti.ErrUsage)
	}
}

func TestRouter_OrphansAndStatsFollowTheSession(t *testing.T) {
	r, rem := newRouter(t)
	ctx := context.Background()
	_, err := r.Put(ctx, note("orphan", `{}`), nil, alice)
	require.NoError(t, err)
	_, err = r.Put(ctx, note("tagged", `{}`, "c"), nil, alice)
	require.NoError(t, err)

	orphans := stream.Collect(r.RecoverOrphans(ctx, graffiti.Query{}, alice))
	require.Len(t, orphans, 1)
	assert.Equal(t, "orphan", orphans[0].Value.Name)

	stats := stream.Collect(r.ChannelStats(ctx, graffiti.Query{}, alice))
	require.Len(t, stats, 1)
	assert.Equal(t, "c", stats[0].Value.Channel)
	assert.Empty(t, rem.Calls())

	stream.Collect(r.RecoverOrphans(ctx, graffiti.Query{}, remoteUser))
	stream.Collect(r.ChannelStats(ctx, graffiti.Query{}, remoteUser))
	assert.Equal(t, []string{"orphans", "stats"}, rem.Calls())
}
