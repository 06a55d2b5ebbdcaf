// Command identityd serves the identity engine over HTTP. It is a thin
// shell: request decoding, the refresh-token cookie contract, and error
// mapping live here; every decision is the engine's.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	identity "github.com/taskloom/identity"
	"github.com/taskloom/identity/middleware"
	"github.com/taskloom/identity/store"
)

type envConfig struct {
	Addr        string `env:"IDENTITY_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"IDENTITY_DATABASE_URL,required"`
	RedisAddr   string `env:"IDENTITY_REDIS_ADDR" envDefault:"localhost:6379"`

	AccessSecret  string `env:"IDENTITY_ACCESS_SECRET,required"`
	RefreshSecret string `env:"IDENTITY_REFRESH_SECRET,required"`
	EmailSecret   string `env:"IDENTITY_EMAIL_SECRET,required"`

	VerificationURL  string `env:"IDENTITY_VERIFICATION_URL" envDefault:"http://localhost:3000/verify-email?token="`
	PasswordResetURL string `env:"IDENTITY_PASSWORD_RESET_URL" envDefault:"http://localhost:3000/reset-password?token="`

	// SecureCookies must stay on anywhere but local development.
	SecureCookies bool `env:"IDENTITY_SECURE_COOKIES" envDefault:"true"`
}

const refreshCookie = "refresh-token"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		log.Error("parse env", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, ec.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: ec.RedisAddr})
	defer rdb.Close()

	cfg := identity.DefaultConfig()
	cfg.Token.AccessSecret = []byte(ec.AccessSecret)
	cfg.Token.RefreshSecret = []byte(ec.RefreshSecret)
	cfg.Token.EmailSecret = []byte(ec.EmailSecret)
	cfg.Mail.VerificationURL = ec.VerificationURL
	cfg.Mail.PasswordResetURL = ec.PasswordResetURL

	engine, err := identity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store.NewPostgres(db)).
		WithLogger(log).
		Build()
	if err != nil {
		log.Error("build engine", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ec.Addr,
		Handler:           routes(engine, ec.SecureCookies),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
	}()

	log.Info("identityd listening", "addr", ec.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve", "error", err)
		os.Exit(1)
	}
}

func routes(engine *identity.Engine, secureCookies bool) http.Handler {
	h := &handlers{engine: engine, secureCookies: secureCookies}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("POST /v1/register", h.register)
	mux.HandleFunc("POST /v1/login", h.login)
	mux.HandleFunc("POST /v1/refresh", h.refresh)
	mux.HandleFunc("POST /v1/logout", h.logout)
	mux.HandleFunc("POST /v1/verification/request", h.requestVerification)
	mux.HandleFunc("GET /v1/verification/confirm", h.verifyEmail)
	mux.HandleFunc("POST /v1/password-reset/request", h.requestReset)
	mux.HandleFunc("POST /v1/password-reset/confirm", h.resetPassword)

	guard := middleware.Guard(engine)
	mux.Handle("GET /v1/me", guard(http.HandlerFunc(h.me)))
	return mux
}

type handlers struct {
	engine        *identity.Engine
	secureCookies bool
}

type userPayload struct {
	ID              string `json:"id"`
	Fullname        string `json:"fullname"`
	Email           string `json:"email"`
	Username        string `json:"username,omitempty"`
	Phone           string `json:"phone,omitempty"`
	IsEmailVerified bool   `json:"is_email_verified"`
}

func toUserPayload(u *store.User) userPayload {
	return userPayload{
		ID:              u.ID,
		Fullname:        u.Fullname,
		Email:           u.Email,
		Username:        u.Username,
		Phone:           u.Phone,
		IsEmailVerified: u.IsEmailVerified,
	}
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Fullname string `json:"fullname"`
		Username string `json:"username"`
		Phone    string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	res, err := h.engine.Register(r.Context(), identity.RegisterInput{
		Email:    body.Email,
		Password: body.Password,
		Fullname: body.Fullname,
		Username: body.Username,
		Phone:    body.Phone,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.setRefreshCookie(w, res.Tokens.RefreshToken)
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":         toUserPayload(res.User),
		"access_token": res.Tokens.AccessToken,
	})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier     string `json:"identifier"`
		IdentifierKind string `json:"identifier_kind"`
		Password       string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	kind := identity.IdentifierKind(body.IdentifierKind)
	if kind == "" {
		kind = identity.IdentifierEmail
	}

	res, err := h.engine.Login(r.Context(), kind, body.Identifier, body.Password)
	if err != nil {
		// Unknown identifier and wrong password read the same from
		// outside.
		k := identity.KindOf(err)
		if k == identity.KindNotFound || k == identity.KindUnauthorized {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.fail(w, err)
		return
	}
	h.setRefreshCookie(w, res.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         toUserPayload(res.User),
		"access_token": res.Tokens.AccessToken,
	})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookie)
	if err != nil {
		http.Error(w, "missing refresh token", http.StatusUnauthorized)
		return
	}
	res, err := h.engine.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         toUserPayload(res.User),
		"access_token": res.AccessToken,
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	bearer := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(bearer, prefix) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.engine.Logout(r.Context(), bearer[len(prefix):]); err != nil {
		h.fail(w, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) requestVerification(w http.ResponseWriter, r *http.Request) {
	h.emailOnly(w, r, h.engine.RequestEmailVerification)
}

func (h *handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) requestReset(w http.ResponseWriter, r *http.Request) {
	h.emailOnly(w, r, h.engine.RequestPasswordReset)
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		ResetToken  string `json:"reset_token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if err := h.engine.ResetPassword(r.Context(), body.Email, body.ResetToken, body.NewPassword); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": claims.UserID,
		"email":   claims.Email,
	})
}

func (h *handlers) emailOnly(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), body.Email); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	kind := identity.KindOf(err)
	status := identity.HTTPStatus(kind)
	if kind == identity.KindInternal {
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

// The refresh token travels only in an httpOnly cookie, never in a JSON
// body.
func (h *handlers) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *handlers) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
