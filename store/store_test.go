package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Exercised against the in-memory store; the same assertions run against
// Postgres when IDENTITY_TEST_DATABASE_URL points at a database with
// schema.sql applied.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	stores := map[string]Store{"memory": NewMemory()}

	if dsn := os.Getenv("IDENTITY_TEST_DATABASE_URL"); dsn != "" {
		db, err := Open(context.Background(), dsn)
		if err != nil {
			t.Fatalf("open test database: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		stores["postgres"] = NewPostgres(db)
	}

	return stores
}

func seedUser(t *testing.T, s Store, email string) *User {
	t.Helper()

	user, err := s.Users().Insert(context.Background(), &User{
		ID:       uuid.NewString(),
		Fullname: "Ada Lovelace",
		Email:    email,
	})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return user
}

func TestUserLookups(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			email := uuid.NewString() + "@x.com"
			created := seedUser(t, s, email)
			if created.SN == 0 {
				t.Fatal("expected surrogate key to be assigned")
			}

			byEmail, err := s.Users().FindByEmail(ctx, email)
			if err != nil {
				t.Fatalf("FindByEmail: %v", err)
			}
			if byEmail == nil || byEmail.ID != created.ID {
				t.Fatalf("FindByEmail mismatch: %+v", byEmail)
			}

			byID, err := s.Users().FindByID(ctx, created.ID)
			if err != nil {
				t.Fatalf("FindByID: %v", err)
			}
			if byID == nil || byID.SN != created.SN {
				t.Fatalf("FindByID mismatch: %+v", byID)
			}

			absent, err := s.Users().FindByEmail(ctx, "nobody@x.com")
			if err != nil {
				t.Fatalf("FindByEmail absent: %v", err)
			}
			if absent != nil {
				t.Fatalf("expected nil for absent user, got %+v", absent)
			}
		})
	}
}

func TestOptionalFieldsDoNotMatchEmpty(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedUser(t, s, uuid.NewString()+"@x.com")

			// Users without username/phone must never collide on "".
			byUsername, err := s.Users().FindByUsername(ctx, "")
			if err != nil {
				t.Fatalf("FindByUsername: %v", err)
			}
			if byUsername != nil {
				t.Fatalf("empty username matched a row: %+v", byUsername)
			}

			byPhone, err := s.Users().FindByPhone(ctx, "")
			if err != nil {
				t.Fatalf("FindByPhone: %v", err)
			}
			if byPhone != nil {
				t.Fatalf("empty phone matched a row: %+v", byPhone)
			}
		})
	}
}

func TestSetEmailVerified(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := seedUser(t, s, uuid.NewString()+"@x.com")

			if err := s.Users().SetEmailVerified(ctx, user.ID); err != nil {
				t.Fatalf("SetEmailVerified: %v", err)
			}
			got, err := s.Users().FindByID(ctx, user.ID)
			if err != nil {
				t.Fatalf("FindByID: %v", err)
			}
			if got == nil || !got.IsEmailVerified {
				t.Fatalf("expected verified flag set, got %+v", got)
			}

			err = s.Users().SetEmailVerified(ctx, uuid.NewString())
			if !errors.Is(err, sql.ErrNoRows) {
				t.Fatalf("expected sql.ErrNoRows for unknown user, got %v", err)
			}
		})
	}
}

func TestCredentialLifecycle(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			email := uuid.NewString() + "@x.com"
			user := seedUser(t, s, email)

			provider, err := s.Providers().FindByName(ctx, ProviderEmail)
			if err != nil {
				t.Fatalf("FindByName: %v", err)
			}
			if provider == nil {
				t.Fatal("email provider must be seeded")
			}

			if _, err := s.Auth().Insert(ctx, &Credential{
				ID:               uuid.NewString(),
				UserSN:           user.SN,
				ProviderSN:       provider.SN,
				ProviderIdentity: email,
				SecretHash:       "$argon2id$stub",
			}); err != nil {
				t.Fatalf("insert credential: %v", err)
			}

			cred, err := s.Auth().FindByUser(ctx, user.SN, provider.SN)
			if err != nil {
				t.Fatalf("FindByUser: %v", err)
			}
			if cred == nil || cred.ProviderIdentity != email {
				t.Fatalf("FindByUser mismatch: %+v", cred)
			}
			if cred.ResetTokenHash != "" || cred.ResetTokenExpiry != nil {
				t.Fatalf("fresh credential must have no pending reset: %+v", cred)
			}

			expiry := time.Now().Add(15 * time.Minute)
			if err := s.Auth().SetResetToken(ctx, user.SN, provider.SN, "reset-hash", expiry); err != nil {
				t.Fatalf("SetResetToken: %v", err)
			}
			cred, err = s.Auth().FindByProviderIdentity(ctx, provider.SN, email)
			if err != nil {
				t.Fatalf("FindByProviderIdentity: %v", err)
			}
			if cred == nil || cred.ResetTokenHash != "reset-hash" || cred.ResetTokenExpiry == nil {
				t.Fatalf("expected pending reset recorded: %+v", cred)
			}

			if err := s.Auth().ConsumeResetToken(ctx, user.SN, provider.SN, "new-secret-hash"); err != nil {
				t.Fatalf("ConsumeResetToken: %v", err)
			}
			cred, err = s.Auth().FindByUser(ctx, user.SN, provider.SN)
			if err != nil {
				t.Fatalf("FindByUser: %v", err)
			}
			if cred.SecretHash != "new-secret-hash" {
				t.Fatalf("expected new secret hash, got %q", cred.SecretHash)
			}
			if cred.ResetTokenHash != "" || cred.ResetTokenExpiry != nil {
				t.Fatalf("consume must clear reset hash and expiry together: %+v", cred)
			}
		})
	}
}

func TestResetTokenScopedToProvider(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	email := uuid.NewString() + "@x.com"
	user := seedUser(t, s, email)

	// Two credentials for the same user under different providers; the
	// reset flow must only ever touch the one it resolved.
	for _, providerSN := range []int64{1, 2} {
		if _, err := s.Auth().Insert(ctx, &Credential{
			ID:               uuid.NewString(),
			UserSN:           user.SN,
			ProviderSN:       providerSN,
			ProviderIdentity: email,
			SecretHash:       "$argon2id$stub",
		}); err != nil {
			t.Fatalf("insert credential for provider %d: %v", providerSN, err)
		}
	}

	expiry := time.Now().Add(15 * time.Minute)
	if err := s.Auth().SetResetToken(ctx, user.SN, 1, "reset-hash", expiry); err != nil {
		t.Fatalf("SetResetToken: %v", err)
	}
	other, err := s.Auth().FindByUser(ctx, user.SN, 2)
	if err != nil {
		t.Fatalf("FindByUser: %v", err)
	}
	if other.ResetTokenHash != "" || other.ResetTokenExpiry != nil {
		t.Fatalf("reset token leaked onto provider 2 credential: %+v", other)
	}

	if err := s.Auth().ConsumeResetToken(ctx, user.SN, 1, "new-secret-hash"); err != nil {
		t.Fatalf("ConsumeResetToken: %v", err)
	}
	other, err = s.Auth().FindByUser(ctx, user.SN, 2)
	if err != nil {
		t.Fatalf("FindByUser: %v", err)
	}
	if other.SecretHash != "$argon2id$stub" {
		t.Fatalf("consume clobbered provider 2 secret: %q", other.SecretHash)
	}
}

func TestInTxVisibility(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			email := uuid.NewString() + "@x.com"

			err := s.InTx(ctx, func(tx Store) error {
				created, err := tx.Users().Insert(ctx, &User{
					ID:       uuid.NewString(),
					Fullname: "Grace Hopper",
					Email:    email,
				})
				if err != nil {
					return err
				}
				// Inserted row must be visible to later reads in the
				// same transaction.
				found, err := tx.Users().FindByEmail(ctx, email)
				if err != nil {
					return err
				}
				if found == nil || found.SN != created.SN {
					t.Fatalf("insert not visible inside tx: %+v", found)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("InTx: %v", err)
			}

			found, err := s.Users().FindByEmail(ctx, email)
			if err != nil {
				t.Fatalf("FindByEmail after commit: %v", err)
			}
			if found == nil {
				t.Fatal("committed row not visible")
			}
		})
	}
}

func TestPostgresImplementsStore(t *testing.T) {
	var _ Store = (*Postgres)(nil)
	var _ Store = (*Memory)(nil)
}
