package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskloom/identity/token"
)

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	e := newTestEngine(t, rdb, nil)

	ctx := context.Background()
	reg := mustRegister(t, e, "gina@test.dev", "password-123")

	res, err := e.Refresh(ctx, reg.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.User.ID != reg.User.ID {
		t.Fatalf("refreshed wrong user: %s", res.User.ID)
	}
	if res.AccessToken == "" {
		t.Fatal("expected new access token")
	}
	if _, err := e.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("new access token rejected: %v", err)
	}
}

func TestRefreshRejectsGarbageAndWrongKind(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	e := newTestEngine(t, rdb, nil)

	ctx := context.Background()
	reg := mustRegister(t, e, "hank@test.dev", "password-123")

	if _, err := e.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("garbage: got %v, want ErrRefreshInvalid", err)
	}
	// An access token signed with the access secret must not refresh.
	if _, err := e.Refresh(ctx, reg.Tokens.AccessToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("access token: got %v, want ErrRefreshInvalid", err)
	}
}

func TestRefreshAfterCacheLossTreatsUserAsLoggedOut(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	e := newTestEngine(t, rdb, nil)

	ctx := context.Background()
	reg := mustRegister(t, e, "iris@test.dev", "password-123")

	// A cache restart wipes the session; the still-signed token no
	// longer matches anything.
	mr.FlushAll()
	if _, err := e.Refresh(ctx, reg.Tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("got %v, want ErrRefreshInvalid", err)
	}
}

func TestRefreshSessionExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	e := newTestEngine(t, rdb, nil)

	ctx := context.Background()
	reg := mustRegister(t, e, "jack@test.dev", "password-123")

	mr.FastForward(5*24*time.Hour + time.Minute)
	if _, err := e.Refresh(ctx, reg.Tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("got %v, want ErrRefreshInvalid", err)
	}
}

func TestRefreshDoesNotRotateRefreshToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	e := newTestEngine(t, rdb, nil)

	ctx := context.Background()
	reg := mustRegister(t, e, "kate@test.dev", "password-123")

	if _, err := e.Refresh(ctx, reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	// The same refresh token stays valid; only a new login rotates it.
	if _, err := e.Refresh(ctx, reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("second refresh failed: %v", err)
	}
}

func TestSigningSecretsAreKindScoped(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	e := newTestEngine(t, rdb, nil)

	reg := mustRegister(t, e, "liam@test.dev", "password-123")

	// The refresh token must not authenticate API calls.
	if _, err := e.Authenticate(context.Background(), reg.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
	if _, err := e.tokens.Verify(token.EmailVerify, reg.Tokens.AccessToken); err == nil {
		t.Fatal("access token verified against email secret")
	}
}
