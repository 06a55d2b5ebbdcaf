package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskloom/identity/store"
)

// RegisterInput is a new account. Email, Password, and Fullname are
// required; the rest is optional profile data.
type RegisterInput struct {
	Email            string
	Password         string
	Fullname         string
	Username         string
	Phone            string
	Occupation       string
	MaxDailyCapacity int
	DateOfBirth      *time.Time
}

// Register creates the user and its email credential in one transaction,
// then logs the new account in. Uniqueness is checked field by field so
// the conflict error names the offending field: email first, then
// username, then phone.
//
// The verification mail goes out after the commit and is best effort; a
// mail outage never unwinds a created account.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" || in.Password == "" || in.Fullname == "" {
		return nil, fmt.Errorf("%w: email, password and fullname are required", ErrValidation)
	}

	// Hash outside the transaction; argon2 is deliberately slow and must
	// not extend DB lock lifetime.
	secretHash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	var created *store.User
	err = e.store.InTx(ctx, func(tx store.Store) error {
		if u, err := tx.Users().FindByEmail(ctx, in.Email); err != nil {
			return err
		} else if u != nil {
			return ErrEmailTaken
		}
		if in.Username != "" {
			if u, err := tx.Users().FindByUsername(ctx, in.Username); err != nil {
				return err
			} else if u != nil {
				return ErrUsernameTaken
			}
		}
		if in.Phone != "" {
			if u, err := tx.Users().FindByPhone(ctx, in.Phone); err != nil {
				return err
			} else if u != nil {
				return ErrPhoneTaken
			}
		}

		provider, err := tx.Providers().FindByName(ctx, store.ProviderEmail)
		if err != nil {
			return err
		}
		if provider == nil {
			return fmt.Errorf("provider %q is not seeded", store.ProviderEmail)
		}

		created, err = tx.Users().Insert(ctx, &store.User{
			ID:               uuid.NewString(),
			Fullname:         in.Fullname,
			Email:            in.Email,
			Username:         in.Username,
			Phone:            in.Phone,
			Occupation:       in.Occupation,
			MaxDailyCapacity: in.MaxDailyCapacity,
			DateOfBirth:      in.DateOfBirth,
		})
		if err != nil {
			return err
		}
		if created == nil {
			return fmt.Errorf("%w: user insert", ErrNoRowWritten)
		}

		cred, err := tx.Auth().Insert(ctx, &store.Credential{
			ID:               uuid.NewString(),
			UserSN:           created.SN,
			ProviderSN:       provider.SN,
			ProviderIdentity: created.Email,
			SecretHash:       secretHash,
		})
		if err != nil {
			return err
		}
		if cred == nil {
			return fmt.Errorf("%w: credential insert", ErrNoRowWritten)
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindConflict {
			e.metricInc(MetricRegisterConflict)
		}
		return nil, err
	}
	e.metricInc(MetricRegisterSuccess)

	e.sendVerificationMail(created)

	tokens, err := e.issueSession(ctx, created)
	if err != nil {
		// The account exists; the caller can still log in normally.
		return nil, err
	}
	return &LoginResult{User: created, Tokens: tokens}, nil
}
