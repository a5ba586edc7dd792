package store

import (
	"testing"
	"time"
)

func TestJWTSessionRoundTrip(t *testing.T) {
	s := NewJWTSessionStore("test-secret", time.Minute)

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}

	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil {
		t.Fatalf("get user by token: %v", err)
	}
	if !ok || userID != "user-1" {
		t.Fatalf("resolved ok=%v userID=%q, want user-1", ok, userID)
	}
}

func TestJWTSessionRejectsMalformedToken(t *testing.T) {
	s := NewJWTSessionStore("test-secret", time.Minute)
	if _, ok, err := s.GetUserIDByToken("not-a-jwt"); err != nil || ok {
		t.Fatalf("malformed token: ok=%v err=%v, want not found without error", ok, err)
	}
}

func TestJWTSessionRejectsWrongSecret(t *testing.T) {
	signer := NewJWTSessionStore("secret-a", time.Minute)
	verifier := NewJWTSessionStore("secret-b", time.Minute)

	token, err := signer.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := verifier.GetUserIDByToken(token); ok {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestJWTSessionRejectsExpiredToken(t *testing.T) {
	s := NewJWTSessionStore("test-secret", -time.Minute)
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err != nil || ok {
		t.Fatalf("expired token: ok=%v err=%v, want not found without error", ok, err)
	}
}
