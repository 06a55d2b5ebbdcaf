package identity

import (
	"errors"
	"time"

	"github.com/taskloom/identity/password"
	"github.com/taskloom/identity/token"
)

// Config carries every tunable of the engine. Build one during startup,
// validate it, and treat it as immutable afterwards.
type Config struct {
	Token         token.Config
	Password      password.Config
	PasswordReset PasswordResetConfig
	Mail          MailConfig
}

// PasswordResetConfig controls the opaque reset-token flow.
type PasswordResetConfig struct {
	// TTL bounds how long a reset token stays consumable.
	TTL time.Duration
}

// MailConfig holds the link templates handed to the mailer. The token is
// appended to the base URL as-is.
type MailConfig struct {
	VerificationURL  string
	PasswordResetURL string
}

// DefaultConfig returns a Config with production-grade hashing parameters
// and the standard token lifetimes. Secrets must still be filled in.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 5 * 24 * time.Hour,
			EmailTTL:   time.Hour,
			Issuer:     "taskloom-identity",
		},
		Password:      password.DefaultConfig(),
		PasswordReset: PasswordResetConfig{TTL: 15 * time.Minute},
	}
}

// Validate checks the parts of the Config that the engine itself owns.
// Token and password sections are validated by their own constructors.
func (c *Config) Validate() error {
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	return nil
}
