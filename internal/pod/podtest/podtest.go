// Package podtest runs in-process pods for tests.
package podtest

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/graffiti-garden/implementation-federated/internal/auth"
	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/objstore"
	"github.com/graffiti-garden/implementation-federated/internal/pod"
	"github.com/graffiti-garden/implementation-federated/internal/schema"
	"github.com/graffiti-garden/implementation-federated/internal/testutil"
)

// Secret signs the tokens of every test pod.
var Secret = []byte("podtest-secret")

// Pod is a running test pod backed by a temporary database.
type Pod struct {
	URL    string
	Server *pod.Server
	DB     *objstore.Store
	Clock  *testutil.DeterministicClock
	Issuer *auth.Issuer
}

// New starts a pod that is shut down when the test ends. Its clock starts
// at testutil.DefaultEpoch.
func New(t testing.TB) *Pod {
	t.Helper()
	clk := testutil.NewDeterministicClock(0)
	db, err := objstore.Open(filepath.Join(t.TempDir(), "pod.db"), objstore.WithClock(clk))
	if err != nil {
		t.Fatalf("open pod database: %v", err)
	}

	srv := pod.New(db, schema.NewCompiler(), auth.NewVerifier(Secret, nil))
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		hs.Close()
		db.Close()
	})

	return &Pod{
		URL:    hs.URL,
		Server: srv,
		DB:     db,
		Clock:  clk,
		Issuer: auth.NewIssuer(Secret),
	}
}

// Actor returns the network identity of a user of this pod.
func (p *Pod) Actor(name string) string {
	return p.URL + "/" + name
}

// Session returns a remote-capable session for the user name, writing to
// this pod by default.
func (p *Pod) Session(t testing.TB, name string) graffiti.Session {
	t.Helper()
	actor := p.Actor(name)
	token, err := p.Issuer.Issue(actor)
	if err != nil {
		t.Fatalf("issue token for %s: %v", actor, err)
	}
	return graffiti.Session{
		Actor:     actor,
		Transport: &auth.Transport{Token: token},
		Source:    p.URL,
	}
}

// Location names an object of the user name on this pod.
func (p *Pod) Location(name, object string) graffiti.Location {
	return graffiti.Location{Actor: p.Actor(name), Source: p.URL, Name: object}
}
