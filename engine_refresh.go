package identity

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/taskloom/identity/token"
)

// Refresh exchanges a valid refresh token for a new access token. The
// presented token must match the user's cached session exactly: once a
// newer refresh token has been issued, an older one is rejected even if
// its signature and expiry still check out. The refresh token itself is
// not rotated here; only a new login rotates it.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.Verify(token.Refresh, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}

	current, err := e.cache.Refresh(ctx, claims.UserID)
	if errors.Is(err, redis.Nil) {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	if current != refreshToken {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}

	user, err := e.store.Users().FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserGone
	}

	access, err := e.tokens.Issue(token.Access, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricRefreshSuccess)
	return &RefreshResult{User: user, AccessToken: access}, nil
}
