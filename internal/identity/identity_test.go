package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/raskol/raskol/internal/raskol"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := New("shared-secret", "raskol", "clients")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMintVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	tok, err := s.Mint("u1", 60*time.Second, raskol.RoleHacker)
	if err != nil {
		t.Fatal("mint:", err)
	}

	claims, err := s.Verify(tok, time.Now())
	if err != nil {
		t.Fatal("verify:", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("sub = %q, want u1", claims.Subject)
	}
	if claims.Role != raskol.RoleHacker {
		t.Errorf("role = %q, want HACKER", claims.Role)
	}
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	tok, err := s.Mint("u1", time.Second, raskol.RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Verify(tok, time.Now().Add(2*time.Second))
	if !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestVerifyWrongIssuer(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	other, err := New("shared-secret", "someone-else", "clients")
	if err != nil {
		t.Fatal(err)
	}

	tok, err := other.Mint("u1", time.Minute, raskol.RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Verify(tok, time.Now()); !errors.Is(err, ErrWrongIssuer) {
		t.Errorf("err = %v, want ErrWrongIssuer", err)
	}
}

func TestVerifyBadSignature(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	wrongSecret := newTestServiceWithSecret(t, "not-the-secret")

	tok, err := wrongSecret.Mint("u1", time.Minute, raskol.RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Verify(tok, time.Now()); !errors.Is(err, ErrBadSignature) {
		t.Errorf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyBadFormat(t *testing.T) {
	t.Parallel()
	s := newTestService(t)
	if _, err := s.Verify("not-a-jwt", time.Now()); err == nil {
		t.Error("expected error for malformed token")
	}
}

func newTestServiceWithSecret(t *testing.T, secret string) *Service {
	t.Helper()
	s, err := New(secret, "raskol", "clients")
	if err != nil {
		t.Fatal(err)
	}
	return s
}
