package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/taskloom/identity/store"
	"github.com/taskloom/identity/token"
)

// RequestEmailVerification issues a fresh verification token and mails
// the link. Already-verified accounts get a conflict rather than a
// silent success so clients can tell the difference.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	user, err := e.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.sendVerificationMail(user)
	return nil
}

// VerifyEmail validates a verification token and flips the user's
// email-verified flag. The token is good until its own expiry; clicking
// the same link twice is a harmless repeat of the flag set.
func (e *Engine) VerifyEmail(ctx context.Context, verifyToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	claims, err := e.tokens.Verify(token.EmailVerify, verifyToken)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		if errors.Is(err, token.ErrExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	err = e.store.Users().SetEmailVerified(ctx, claims.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	e.metricInc(MetricEmailVerificationSuccess)
	return nil
}

// sendVerificationMail mints a verification token and delivers it in the
// background. Token minting failures are logged too; they never fail the
// triggering operation.
func (e *Engine) sendVerificationMail(u *store.User) {
	verifyToken, err := e.tokens.Issue(token.EmailVerify, u.ID, u.Email)
	if err != nil {
		e.log.Error("verification token issue failed", "error", err)
		return
	}
	link := e.config.Mail.VerificationURL + verifyToken
	e.sendMail("verification", func(ctx context.Context) error {
		return e.mailer.SendVerification(ctx, u.Email, u.Fullname, link)
	})
}
