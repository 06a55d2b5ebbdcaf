// Package token issues and verifies the engine's security tokens.
//
// Three kinds (access, refresh, email-verify) are signed JWTs, each with
// its own secret and lifetime. Password-reset tokens are deliberately not
// signed: they are opaque high-entropy values whose hash is stored at
// rest, so a database read alone never yields a usable token.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind selects the signing secret and lifetime for a signed token.
type Kind int

const (
	// Access authorizes API calls. Short-lived.
	Access Kind = iota
	// Refresh renews access tokens. Long-lived, cache-validated.
	Refresh
	// EmailVerify proves mailbox ownership.
	EmailVerify
)

// String returns the claim-facing name of the kind.
func (k Kind) String() string {
	switch k {
	case Access:
		return "access"
	case Refresh:
		return "refresh"
	case EmailVerify:
		return "email-verify"
	default:
		return "unknown"
	}
}

var (
	// ErrExpired is returned by Verify for a well-formed token past its
	// expiry. Kept distinct from ErrInvalid so callers can tell "log in
	// again" apart from "malformed request".
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned by Verify for a token whose signature or
	// structure does not check out.
	ErrInvalid = errors.New("token invalid")
)

const resetTokenBytes = 32

// Claims is the payload carried by every signed kind.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Config holds one secret and lifetime per signed kind.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	EmailSecret   []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	EmailTTL   time.Duration

	Issuer string
}

// Authority signs and verifies tokens. Immutable after construction and
// safe for concurrent use.
type Authority struct {
	config Config
}

// NewAuthority validates the per-kind secrets and lifetimes.
func NewAuthority(cfg Config) (*Authority, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 || len(cfg.EmailSecret) == 0 {
		return nil, errors.New("all signing secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.EmailTTL <= 0 {
		return nil, errors.New("all token lifetimes must be positive")
	}
	return &Authority{config: cfg}, nil
}

// Issue signs a token of the given kind carrying the subject id and
// email. Issuance fails only on a signing transform error.
func (a *Authority) Issue(kind Kind, userID, email string) (string, error) {
	secret, ttl, err := a.domain(kind)
	if err != nil {
		return "", err
	}

	// The jti keeps two same-second issuances from colliding; rotation
	// and revocation both compare token strings for equality.
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    a.config.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature and expiry of a token against the given kind's
// secret and returns its claims. Expiry is reported as ErrExpired; any
// other failure as ErrInvalid.
func (a *Authority) Verify(kind Kind, tokenStr string) (*Claims, error) {
	secret, _, err := a.domain(kind)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalid
	}
	if a.config.Issuer != "" && claims.Issuer != a.config.Issuer {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Lifetime returns the configured TTL for a signed kind.
func (a *Authority) Lifetime(kind Kind) time.Duration {
	_, ttl, err := a.domain(kind)
	if err != nil {
		return 0
	}
	return ttl
}

func (a *Authority) domain(kind Kind) ([]byte, time.Duration, error) {
	switch kind {
	case Access:
		return a.config.AccessSecret, a.config.AccessTTL, nil
	case Refresh:
		return a.config.RefreshSecret, a.config.RefreshTTL, nil
	case EmailVerify:
		return a.config.EmailSecret, a.config.EmailTTL, nil
	default:
		return nil, 0, fmt.Errorf("unsupported token kind %d", kind)
	}
}

// NewResetToken generates an opaque password-reset token: 32 random
// bytes, hex-encoded. The plaintext is emailed to the user; only a
// one-way hash of it may be persisted.
func NewResetToken() (string, error) {
	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
