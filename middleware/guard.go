// Package middleware adapts the identity engine to net/http. The guard
// reads the Authorization header, authenticates the bearer token through
// the engine (signature, expiry, revocation list), and injects the
// verified claims into the request context.
//
// This package translates HTTP semantics into Engine calls; it never
// parses tokens or talks to the cache itself.
package middleware

import (
	"context"
	"net/http"
	"strings"

	identity "github.com/taskloom/identity"
	"github.com/taskloom/identity/token"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims the guard injected, if any.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return c, ok
}

// Guard rejects requests whose bearer access token does not authenticate,
// including tokens revoked by logout.
func Guard(engine *identity.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			bearer, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.Authenticate(r.Context(), bearer)
			if err != nil {
				if identity.KindOf(err) == identity.KindInternal {
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	t := value[len(bearer):]
	if t == "" {
		return "", false
	}
	return t, true
}
