package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("s3cret")
	tok, err := v.Sign(Principal{UserID: "u-1", Role: RoleOrganizer}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	p, err := v.ParseBearer("Bearer " + tok)
	if err != nil {
		t.Fatalf("ParseBearer: %v", err)
	}
	if p.UserID != "u-1" || !p.IsOrganizer() {
		t.Fatalf("principal = %+v", p)
	}
}

func TestVerifier_DefaultsToParticipant(t *testing.T) {
	v := NewVerifier("s3cret")
	tok, _ := v.Sign(Principal{UserID: "u-2"}, time.Hour, time.Now())
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Role != RoleParticipant {
		t.Fatalf("role = %q", p.Role)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("s3cret")
	expired, _ := v.Sign(Principal{UserID: "u"}, time.Minute, time.Now().Add(-time.Hour))
	foreign, _ := NewVerifier("other").Sign(Principal{UserID: "u"}, time.Hour, time.Now())
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: RoleParticipant}).SignedString([]byte("s3cret"))
	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
	}).SignedString([]byte("s3cret"))

	for name, header := range map[string]string{
		"no scheme":  expired,
		"expired":    "Bearer " + expired,
		"wrong key":  "Bearer " + foreign,
		"no subject": "Bearer " + noSub,
		"bad role":   "Bearer " + badRole,
		"garbage":    "Bearer abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := v.ParseBearer(header); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context reported a principal")
	}
	ctx := WithPrincipal(context.Background(), Principal{UserID: "u", Role: RoleParticipant})
	p, ok := FromContext(ctx)
	if !ok || p.UserID != "u" {
		t.Fatalf("got %+v %v", p, ok)
	}
}
