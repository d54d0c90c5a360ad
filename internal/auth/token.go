// Package auth issues and verifies the bearer tokens sessions carry to
// pods.
//
// Tokens are HS256 JWTs whose subject is the actor. The pod and the
// clients it serves share the signing secret.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// DefaultTTL is how long issued tokens stay valid.
const DefaultTTL = 24 * time.Hour

// Issuer signs tokens for actors.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.ttl = ttl }
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer signing with secret.
func NewIssuer(secret []byte, opts ...IssuerOption) *Issuer {
	i := &Issuer{secret: secret, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns a signed token for actor.
func (i *Issuer) Issue(actor string) (string, error) {
	if actor == "" {
		return "", graffiti.NewError(graffiti.KindUsage, "cannot issue a token without an actor")
	}
	now := i.now()
	claims := gojwt.RegisteredClaims{
		Subject:   actor,
		ID:        uuid.NewString(),
		IssuedAt:  gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verifier checks tokens signed by an Issuer with the same secret.
type Verifier struct {
	secret []byte
	parser *gojwt.Parser
}

// NewVerifier creates a verifier for secret. now may be nil for the wall
// clock.
func NewVerifier(secret []byte, now func() time.Time) *Verifier {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if now != nil {
		opts = append(opts, gojwt.WithTimeFunc(now))
	}
	return &Verifier{secret: secret, parser: gojwt.NewParser(opts...)}
}

// Verify returns the actor a token was issued to.
func (v *Verifier) Verify(token string) (string, error) {
	claims := &gojwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return "", graffiti.NewError(graffiti.KindUnauthorized, "token expired")
		}
		return "", graffiti.WrapError(graffiti.KindUnauthorized, err, "invalid token")
	}
	if claims.Subject == "" {
		return "", graffiti.NewError(graffiti.KindUnauthorized, "token has no subject")
	}
	return claims.Subject, nil
}

// Actor returns the actor authenticated by r's bearer token, or "" for an
// anonymous request.
func (v *Verifier) Actor(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", nil
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return "", graffiti.NewError(graffiti.KindUnauthorized, "malformed Authorization header")
	}
	return v.Verify(token)
}
