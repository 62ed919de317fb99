package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerify(t *testing.T) {
	v, err := NewVerifier("s3cret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := v.Issue(Actor{ID: "d1", Role: RoleDriver})
	if err != nil {
		t.Fatal(err)
	}
	a, err := v.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "d1" || a.Role != RoleDriver {
		t.Fatalf("actor = %+v", a)
	}
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewVerifier("s3cret", time.Hour)
	other, _ := NewVerifier("different", time.Hour)
	expired, _ := NewVerifier("s3cret", -time.Minute)

	foreign, _ := other.Issue(Actor{ID: "d1", Role: RoleDriver})
	stale, _ := expired.Issue(Actor{ID: "d1", Role: RoleDriver})
	none, _ := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, Claims{Role: RoleAdmin}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{"foreign": foreign, "expired": stale, "unsigned": none, "garbage": "a.b.c"} {
		if _, err := v.Verify(tok); err == nil {
			t.Fatalf("%s token should be rejected", name)
		}
	}

	if _, err := v.Issue(Actor{ID: "x", Role: "root"}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewVerifier("  ", time.Hour); err == nil {
		t.Fatal("empty secret should fail")
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/rides", nil)
	if _, err := FromRequest(r); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err = %v", err)
	}
	r.Header.Set("Authorization", "Bearer abc")
	if tok, _ := FromRequest(r); tok != "abc" {
		t.Fatalf("tok = %q", tok)
	}
	ws := httptest.NewRequest("GET", "/ws/driver?access_token=xyz", nil)
	if tok, _ := FromRequest(ws); tok != "xyz" {
		t.Fatalf("tok = %q", tok)
	}
}

func TestActorContext(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{ID: "p1", Role: RolePassenger})
	a, ok := ActorFrom(ctx)
	if !ok || a.ID != "p1" {
		t.Fatalf("actor = %+v %v", a, ok)
	}
	if err := RoleAllowed(a, RoleDriver, RoleAdmin); !errors.Is(err, ErrRoleForbidden) {
		t.Fatalf("err = %v", err)
	}
}
