// Package auth turns an HS256 bearer token into an Actor. Tokens are issued
// elsewhere; Issue exists for tests and local tooling.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	return r == RolePassenger || r == RoleDriver || r == RoleAdmin
}

var (
	ErrMissingToken       = errors.New("bearer token missing")
	ErrInvalidSigningAlgo = errors.New("unexpected signing method")
	ErrInvalidRole        = errors.New("invalid role")
	ErrRoleForbidden      = errors.New("role not allowed")
)

// Actor is the verified caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type Claims struct {
	Role Role `json:"role"`
	jwtlib.RegisteredClaims
}

type Verifier struct {
	secret []byte
	ttl    time.Duration
}

func NewVerifier(secret string, ttl time.Duration) (*Verifier, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, errors.New("jwt: empty secret key")
	}
	return &Verifier{secret: []byte(s), ttl: ttl}, nil
}

// Issue signs a token for actor.
func (v *Verifier) Issue(a Actor) (string, error) {
	if !a.Role.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidRole, a.Role)
	}
	now := time.Now()
	claims := Claims{
		Role: a.Role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify checks signature, expiry and role, returning the actor.
func (v *Verifier) Verify(token string) (Actor, error) {
	parser := jwtlib.NewParser(jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithExpirationRequired())
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		if t.Method != jwtlib.SigningMethodHS256 {
			return nil, ErrInvalidSigningAlgo
		}
		return v.secret, nil
	})
	if err != nil {
		return Actor{}, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return Actor{}, errors.New("invalid token")
	}
	if !claims.Role.Valid() {
		return Actor{}, fmt.Errorf("%w: %s", ErrInvalidRole, claims.Role)
	}
	return Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// FromRequest reads "Authorization: Bearer <token>", falling back to the
// access_token query parameter that browsers must use for WebSockets.
func FromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); tok != "" {
			return tok, nil
		}
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return tok, nil
	}
	return "", ErrMissingToken
}

// RoleAllowed reports ErrRoleForbidden unless a has one of the roles.
func RoleAllowed(a Actor, allowed ...Role) error {
	if slices.Contains(allowed, a.Role) {
		return nil
	}
	return ErrRoleForbidden
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
