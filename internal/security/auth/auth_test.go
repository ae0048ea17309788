package auth

import (
	"errors"
	"testing"
	"time"
)

func TestAuthenticateAndValidateRoundTrip(t *testing.T) {
	a := New(Config{Secret: []byte("test-secret")})
	token, session, err := a.Authenticate("user-1", "operator")
	if err != nil {
		t.Fatal(err)
	}
	if session.UserID != "user-1" || session.Role != "operator" {
		t.Fatalf("unexpected session: %+v", session)
	}

	validated, err := a.Validate(token)
	if err != nil {
		t.Fatal(err)
	}
	if validated.UserID != "user-1" || validated.Role != "operator" {
		t.Fatalf("unexpected validated session: %+v", validated)
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	a := New(Config{Secret: []byte("test-secret")})
	token, _, err := a.Authenticate("user-1", "operator")
	if err != nil {
		t.Fatal(err)
	}
	other := New(Config{Secret: []byte("other-secret")})
	if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	a := New(Config{Secret: []byte("test-secret"), Expiry: time.Nanosecond})
	token, _, err := a.Authenticate("user-1", "operator")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := a.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestAuthoriseAllowsGrantedCapability(t *testing.T) {
	a := New(Config{Secret: []byte("s")})
	session := Session{UserID: "u", Role: "admin"}
	if err := a.Authorise(session, "task:write"); err != nil {
		t.Fatalf("expected admin to have task:write, got %v", err)
	}
}

func TestAuthoriseDeniesWithReason(t *testing.T) {
	a := New(Config{Secret: []byte("s")})
	session := Session{UserID: "u", Role: "viewer"}
	err := a.Authorise(session, "task:write")
	if err == nil {
		t.Fatal("expected denial for viewer role")
	}
	var denial Denial
	if !errors.As(err, &denial) || denial.Reason == "" {
		t.Fatalf("expected Denial with reason, got %v", err)
	}
}
