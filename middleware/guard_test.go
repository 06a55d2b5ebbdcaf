package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	identity "github.com/taskloom/identity"
	"github.com/taskloom/identity/password"
	"github.com/taskloom/identity/store"
)

func newGuardedServer(t *testing.T) (*identity.Engine, http.Handler) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := identity.DefaultConfig()
	cfg.Token.AccessSecret = []byte("guard-access")
	cfg.Token.RefreshSecret = []byte("guard-refresh")
	cfg.Token.EmailSecret = []byte("guard-email")
	cfg.Password = password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16,
	}

	engine, err := identity.New().
		WithConfig(cfg).
		WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})).
		WithStore(store.NewMemory()).
		WithMailer(identity.NopMailer{}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims missing from context")
		}
		w.Write([]byte(claims.UserID))
	}))
	return engine, handler
}

func TestGuardAllowsValidBearer(t *testing.T) {
	engine, handler := newGuardedServer(t)

	res, err := engine.Register(context.Background(), identity.RegisterInput{
		Email: "w@test.dev", Password: "password-123", Fullname: "W",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.Tokens.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != res.User.ID {
		t.Fatalf("body = %q, want user id %q", rec.Body.String(), res.User.ID)
	}
}

func TestGuardRejectsMissingAndBadTokens(t *testing.T) {
	engine, handler := newGuardedServer(t)

	res, err := engine.Register(context.Background(), identity.RegisterInput{
		Email: "x@test.dev", Password: "password-123", Fullname: "X",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := engine.Logout(context.Background(), res.Tokens.AccessToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer garbage"},
		{"revoked token", "Bearer " + res.Tokens.AccessToken},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tc.name, rec.Code)
		}
	}
}
