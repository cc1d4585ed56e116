package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/obs"
)

func TestLoginIssuesBranchBoundSession(t *testing.T) {
	dir := newStubDirectory()
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := dir.users["u-acc"]
	u.PasswordHash = hash
	dir.users["u-acc"] = u

	sessions, _, _ := newTestSessions(t)
	authn := NewAuthenticator(dir, sessions, 30*time.Minute, obs.Discard())

	sess, err := authn.Login(context.Background(), "accountant", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.UserID != "u-acc" || sess.BranchID != "b-1" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != 30*time.Minute {
		t.Fatalf("unexpected ttl %v", got)
	}

	if err := authn.Logout(context.Background(), sess.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := sessions.Get(context.Background(), sess.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session must be gone after logout, got %v", err)
	}
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	dir := newStubDirectory()
	hash, _ := HashPassword("correct horse")
	for id, u := range dir.users {
		u.PasswordHash = hash
		dir.users[id] = u
	}
	sessions, _, _ := newTestSessions(t)
	authn := NewAuthenticator(dir, sessions, 0, obs.Discard())

	cases := []struct{ user, pass string }{
		{"accountant", "wrong password"},
		{"nobody", "correct horse"},
		{"former", "correct horse"},
	}
	for _, tc := range cases {
		_, err := authn.Login(context.Background(), tc.user, tc.pass)
		if fault.KindOf(err) != fault.KindUnauthenticated {
			t.Fatalf("%s: expected unauthenticated, got %v", tc.user, err)
		}
	}

	if _, err := authn.Login(context.Background(), " ", ""); fault.KindOf(err) != fault.KindValidation {
		t.Fatalf("expected validation fault, got %v", err)
	}
}

func TestHashPasswordEnforcesMinimumLength(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
