// Package store is the account repository surface: uniqueness lookups
// and atomic writes over the User and AuthCredential entities, plus the
// static Provider reference data.
//
// Each entity gets a narrow interface covering only what the engine's
// orchestrators call; no generic CRUD base. The Postgres implementation
// lives in postgres.go, an in-memory fake for tests in memory.go.
package store

import (
	"context"
	"time"
)

// User is the identity record. SN is the internal surrogate key used for
// joins; ID is the external opaque UUID used in every client-facing
// context, including token claims and cache keys.
type User struct {
	SN               int64
	ID               string
	Fullname         string
	Email            string
	Username         string
	Phone            string
	Status           string
	Occupation       string
	MaxDailyCapacity int
	DateOfBirth      *time.Time
	IsEmailVerified  bool
	IsPhoneVerified  bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Credential is one row per (user, provider) pair: the provider-specific
// identity string, the hash of the current secret, and, while a reset is
// pending, the hash and absolute expiry of the active reset token.
type Credential struct {
	SN               int64
	ID               string
	UserSN           int64
	ProviderSN       int64
	ProviderIdentity string
	SecretHash       string
	ResetTokenHash   string
	ResetTokenExpiry *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Provider identifies an authentication method ("email", later "phone",
// "oauth:*"). Read-only reference data.
type Provider struct {
	SN   int64
	Name string
}

// ProviderEmail is the primary credential provider every registration
// creates a row for.
const ProviderEmail = "email"

// UserStore covers the user lookups and writes the orchestrators need.
// Find methods return (nil, nil) when no row matches.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	Insert(ctx context.Context, user *User) (*User, error)
	SetEmailVerified(ctx context.Context, id string) error
}

// AuthStore covers the AuthCredential rows.
type AuthStore interface {
	FindByUser(ctx context.Context, userSN, providerSN int64) (*Credential, error)
	FindByProviderIdentity(ctx context.Context, providerSN int64, identity string) (*Credential, error)
	Insert(ctx context.Context, cred *Credential) (*Credential, error)
	// SetResetToken records the hash and expiry of a newly issued reset
	// token on the (user, provider) credential, replacing any previous
	// pending reset.
	SetResetToken(ctx context.Context, userSN, providerSN int64, tokenHash string, expiry time.Time) error
	// ConsumeResetToken writes the new secret hash and clears the reset
	// hash and expiry in the same update, so a consumed token can never
	// validate twice. Scoped to one (user, provider) credential.
	ConsumeResetToken(ctx context.Context, userSN, providerSN int64, newSecretHash string) error
}

// ProviderStore resolves provider reference data.
type ProviderStore interface {
	FindByName(ctx context.Context, name string) (*Provider, error)
}

// Store bundles the per-entity surfaces with a transaction runner.
// InTx runs fn against a transaction-bound Store and commits iff fn
// returns nil; any error rolls the whole unit of work back.
type Store interface {
	Users() UserStore
	Auth() AuthStore
	Providers() ProviderStore
	InTx(ctx context.Context, fn func(Store) error) error
}
