package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/schema"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
	"github.com/graffiti-garden/implementation-federated/internal/wire"
)

type fakeRecorder struct {
	mu       sync.Mutex
	previous []graffiti.Object
	current  []*graffiti.Object
}

func (r *fakeRecorder) RecordWrite(previous graffiti.Object, current *graffiti.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previous = append(r.previous, previous)
	r.current = append(r.current, current)
}

// pod starts an httptest server and returns its URL.
func pod(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

// deadPod returns the URL of a server that is no longer listening.
func deadPod(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

// ndjson answers with one record per line.
func ndjson(records ...any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := wire.NewEncoder(w)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return
			}
		}
	}
}

func record(actor, name string, lm int64, value string, channels ...string) graffiti.Object {
	if channels == nil {
		channels = []string{}
	}
	return graffiti.Object{
		Location:     graffiti.Location{Actor: actor, Name: name},
		Value:        json.RawMessage(value),
		Channels:     channels,
		LastModified: lm,
	}
}

// respond writes a single-object response for obj.
func respond(w http.ResponseWriter, status int, obj graffiti.Object) {
	wire.SetObjectHeaders(w.Header(), obj)
	w.WriteHeader(status)
	w.Write(obj.Value)
}

func newClient(opts ...Option) *Client {
	return New(schema.NewCompiler(), opts...)
}

func authed(actor string) graffiti.Session {
	return graffiti.Session{Actor: actor, Transport: http.DefaultClient}
}

func split[T any](t *testing.T, s *stream.Stream[T]) ([]T, []stream.Result[T]) {
	t.Helper()
	var values []T
	var errs []stream.Result[T]
	for r := range s.All() {
		if r.Err != nil {
			errs = append(errs, r)
			continue
		}
		values = append(values, r.Value)
	}
	return values, errs
}

func indexed(n int, channels ...string) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = record("alice", fmt.Sprintf("n%d", i), int64(1000+i), fmt.Sprintf(`{"i":%d}`, i), channels...)
	}
	return out
}

func requireIndices(t *testing.T, objs []graffiti.Object, want ...int) {
	t.Helper()
	require.Len(t, objs, len(want))
	for i, obj := range objs {
		var v struct{ I int }
		require.NoError(t, json.Unmarshal(obj.Value, &v))
		require.Equal(t, want[i], v.I, "position %d", i)
	}
}
