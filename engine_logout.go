package identity

import (
	"context"
	"errors"
	"time"

	"github.com/taskloom/identity/token"
)

// Logout revokes a session: the access token goes on the revocation list
// for its remaining lifetime and the user's refresh session is dropped.
// An already-expired access token is accepted as a no-op logout.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	claims, err := e.tokens.Verify(token.Access, accessToken)
	if errors.Is(err, token.ErrExpired) {
		// Nothing left to revoke.
		return nil
	}
	if err != nil {
		return ErrTokenInvalid
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if err := e.cache.Blacklist(ctx, accessToken, remaining); err != nil {
		return err
	}
	if err := e.cache.DeleteRefresh(ctx, claims.UserID); err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	return nil
}

// Authenticate verifies an access token and checks it against the
// revocation list. It is the check the request middleware runs on every
// guarded call.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*token.Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.Verify(token.Access, accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	revoked, err := e.cache.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		e.metricInc(MetricTokenRevokedHit)
		return nil, ErrTokenRevoked
	}
	return claims, nil
}
