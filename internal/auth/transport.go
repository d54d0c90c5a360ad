package auth

import (
	"fmt"
	"net/http"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// Transport attaches a bearer token to every request.
type Transport struct {
	// Base sends the requests. Nil means http.DefaultClient.
	Base  graffiti.Transport
	Token string
}

var _ graffiti.Transport = (*Transport)(nil)

// Do sends a copy of req carrying the token.
func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.Token))

	base := t.Base
	if base == nil {
		base = http.DefaultClient
	}
	return base.Do(r)
}
