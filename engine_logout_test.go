package identity

import (
	"context"
	"errors"
	"testing"
)

func TestLogoutRevokesSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	e := newTestEngine(t, rdb, nil)

	ctx := context.Background()
	reg := mustRegister(t, e, "tess@test.dev", "password-123")

	if _, err := e.Authenticate(ctx, reg.Tokens.AccessToken); err != nil {
		t.Fatalf("Authenticate before logout failed: %v", err)
	}

	if err := e.Logout(ctx, reg.Tokens.AccessToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// The access token is revoked even though it is still signed and
	// unexpired.
	if _, err := e.Authenticate(ctx, reg.Tokens.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("got %v, want ErrTokenRevoked", err)
	}
	// The refresh session is gone too.
	if _, err := e.Refresh(ctx, reg.Tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("got %v, want ErrRefreshInvalid", err)
	}
}

func TestLogoutRejectsGarbage(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	e := newTestEngine(t, rdb, nil)

	if err := e.Logout(context.Background(), "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
}

func TestLogoutDoesNotAffectOtherUsers(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	e := newTestEngine(t, rdb, nil)

	ctx := context.Background()
	a := mustRegister(t, e, "uma@test.dev", "password-123")
	b := mustRegister(t, e, "vic@test.dev", "password-123")

	if err := e.Logout(ctx, a.Tokens.AccessToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := e.Authenticate(ctx, b.Tokens.AccessToken); err != nil {
		t.Fatalf("other user's access token rejected: %v", err)
	}
	if _, err := e.Refresh(ctx, b.Tokens.RefreshToken); err != nil {
		t.Fatalf("other user's refresh failed: %v", err)
	}
}
