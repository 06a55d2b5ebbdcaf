package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskloom/identity/store"
	"github.com/taskloom/identity/token"
)

// RequestPasswordReset issues an opaque reset token for the account,
// stores its hash and expiry, and mails the plaintext. Only the hash is
// persisted, so a database read alone never yields a usable token. A new
// request replaces any earlier pending reset.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	plaintext, err := token.NewResetToken()
	if err != nil {
		return err
	}
	// Hashing happens before the transaction, same as registration.
	tokenHash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return err
	}
	expiry := time.Now().Add(e.config.PasswordReset.TTL)

	var user *store.User
	err = e.store.InTx(ctx, func(tx store.Store) error {
		var err error
		user, err = tx.Users().FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		cred, err := e.emailCredential(ctx, tx, user.SN)
		if err != nil {
			return err
		}
		return tx.Auth().SetResetToken(ctx, cred.UserSN, cred.ProviderSN, tokenHash, expiry)
	})
	if err != nil {
		return err
	}
	e.metricInc(MetricPasswordResetRequest)

	link := e.config.Mail.PasswordResetURL + plaintext
	e.sendMail("password_reset", func(ctx context.Context) error {
		return e.mailer.SendPasswordReset(ctx, user.Email, user.Fullname, link)
	})
	return nil
}

// ResetPassword consumes a pending reset token and installs the new
// secret. The new hash is written and the reset hash and expiry are
// cleared in the same update, so a consumed token can never validate
// twice. Expiry and mismatch fail differently so the UX can offer a new
// link only when the old one timed out.
func (e *Engine) ResetPassword(ctx context.Context, email, presentedToken, newSecret string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || presentedToken == "" || newSecret == "" {
		return fmt.Errorf("%w: email, token and new password are required", ErrValidation)
	}

	newHash, err := e.hasher.Hash(newSecret)
	if err != nil {
		return err
	}

	err = e.store.InTx(ctx, func(tx store.Store) error {
		provider, err := tx.Providers().FindByName(ctx, store.ProviderEmail)
		if err != nil {
			return err
		}
		if provider == nil {
			return ErrNoPendingReset
		}
		cred, err := tx.Auth().FindByProviderIdentity(ctx, provider.SN, email)
		if err != nil {
			return err
		}
		if cred == nil {
			return ErrNoPendingReset
		}
		if cred.ResetTokenHash == "" || cred.ResetTokenExpiry == nil {
			return ErrNoPendingReset
		}
		if time.Now().After(*cred.ResetTokenExpiry) {
			return ErrResetExpired
		}
		ok, err := e.hasher.Verify(presentedToken, cred.ResetTokenHash)
		if err != nil {
			return err
		}
		if !ok {
			return ErrResetInvalid
		}
		return tx.Auth().ConsumeResetToken(ctx, cred.UserSN, cred.ProviderSN, newHash)
	})
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return err
	}
	e.metricInc(MetricPasswordResetSuccess)
	return nil
}

// emailCredential loads the user's password credential, surfacing the
// defensive not-found errors the flows share.
func (e *Engine) emailCredential(ctx context.Context, tx store.Store, userSN int64) (*store.Credential, error) {
	provider, err := tx.Providers().FindByName(ctx, store.ProviderEmail)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, ErrCredentialNotFound
	}
	cred, err := tx.Auth().FindByUser(ctx, userSN, provider.SN)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrCredentialNotFound
	}
	return cred, nil
}
