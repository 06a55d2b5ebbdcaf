package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskloom/identity/store"
)

// IdentifierKind selects which unique field a login identifier refers to.
type IdentifierKind string

const (
	IdentifierEmail IdentifierKind = "email"
	IdentifierPhone IdentifierKind = "phone"
)

// Login authenticates an email-or-phone identifier against the stored
// password hash and issues a fresh session. The refresh token overwrites
// any previous one for the user, so logging in again ends the prior
// session.
//
// ErrUserNotFound and ErrInvalidCredentials are distinct internally, but
// the boundary must collapse both into one generic message.
func (e *Engine) Login(ctx context.Context, kind IdentifierKind, identifier, secret string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", ErrValidation)
	}

	var (
		user *store.User
		cred *store.Credential
	)
	// The lookup sequence runs in one transaction for read consistency;
	// the happy path writes nothing.
	err := e.store.InTx(ctx, func(tx store.Store) error {
		var err error
		switch kind {
		case IdentifierEmail:
			user, err = tx.Users().FindByEmail(ctx, strings.ToLower(identifier))
		case IdentifierPhone:
			user, err = tx.Users().FindByPhone(ctx, identifier)
		default:
			return fmt.Errorf("%w: unknown identifier kind %q", ErrValidation, kind)
		}
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		provider, err := tx.Providers().FindByName(ctx, store.ProviderEmail)
		if err != nil {
			return err
		}
		if provider == nil {
			return ErrCredentialNotFound
		}
		cred, err = tx.Auth().FindByUser(ctx, user.SN, provider.SN)
		if err != nil {
			return err
		}
		if cred == nil {
			return ErrCredentialNotFound
		}
		return nil
	})
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	// The verify runs after the read transaction ends: the sequence
	// wrote nothing, so there is no consistency left to protect, and the
	// argon2 work must not hold a DB connection.
	ok, err := e.hasher.Verify(secret, cred.SecretHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	tokens, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	return &LoginResult{User: user, Tokens: tokens}, nil
}
