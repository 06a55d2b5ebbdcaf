package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Postgres implements Store over a *sql.DB. The zero tx field means
// statements run on the pool; InTx produces a copy bound to one
// transaction. Construct once and share; the handle is injected, never
// looked up globally.
type Postgres struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres wraps an already-opened connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (p *Postgres) q() querier {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

// InTx runs fn inside a single transaction. A nested call reuses the
// surrounding transaction rather than opening a second one.
func (p *Postgres) InTx(ctx context.Context, fn func(Store) error) error {
	if p.tx != nil {
		return fn(p)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Postgres{db: p.db, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Users returns the user surface bound to this handle's transaction
// state.
func (p *Postgres) Users() UserStore { return pgUsers{p.q()} }

// Auth returns the credential surface.
func (p *Postgres) Auth() AuthStore { return pgAuth{p.q()} }

// Providers returns the provider surface.
func (p *Postgres) Providers() ProviderStore { return pgProviders{p.q()} }

var _ Store = (*Postgres)(nil)

type pgUsers struct {
	q querier
}

const userColumns = `sn, id, fullname, email,
	COALESCE(username, ''), COALESCE(phone, ''),
	COALESCE(status, ''), COALESCE(occupation, ''),
	COALESCE(maximum_daily_capacity, 0), date_of_birth,
	is_email_verified, is_phone_verified, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.SN, &user.ID, &user.Fullname, &user.Email,
		&user.Username, &user.Phone,
		&user.Status, &user.Occupation,
		&user.MaxDailyCapacity, &user.DateOfBirth,
		&user.IsEmailVerified, &user.IsPhoneVerified,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (s pgUsers) findBy(ctx context.Context, column, value string) (*User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`,
		value,
	))
}

func (s pgUsers) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findBy(ctx, "id", id)
}

func (s pgUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findBy(ctx, "email", email)
}

func (s pgUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findBy(ctx, "username", username)
}

func (s pgUsers) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return s.findBy(ctx, "phone", phone)
}

func (s pgUsers) Insert(ctx context.Context, user *User) (*User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`INSERT INTO users (id, fullname, email, username, phone, status,
			occupation, maximum_daily_capacity, date_of_birth)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			NULLIF($7, ''), NULLIF($8, 0), $9)
		 RETURNING `+userColumns,
		user.ID, user.Fullname, user.Email, user.Username, user.Phone,
		user.Status, user.Occupation, user.MaxDailyCapacity, user.DateOfBirth,
	))
}

func (s pgUsers) SetEmailVerified(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE users SET is_email_verified = TRUE, updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

var _ UserStore = pgUsers{}

type pgAuth struct {
	q querier
}

const credentialColumns = `sn, id, user_sn, provider_sn, provider_identity,
	COALESCE(hashed_secret, ''), COALESCE(reset_token, ''), reset_token_expiry,
	created_at, updated_at`

func scanCredential(row *sql.Row) (*Credential, error) {
	cred := &Credential{}
	err := row.Scan(
		&cred.SN, &cred.ID, &cred.UserSN, &cred.ProviderSN, &cred.ProviderIdentity,
		&cred.SecretHash, &cred.ResetTokenHash, &cred.ResetTokenExpiry,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	return cred, nil
}

func (s pgAuth) FindByUser(ctx context.Context, userSN, providerSN int64) (*Credential, error) {
	return scanCredential(s.q.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM auth WHERE user_sn = $1 AND provider_sn = $2`,
		userSN, providerSN,
	))
}

func (s pgAuth) FindByProviderIdentity(ctx context.Context, providerSN int64, identity string) (*Credential, error) {
	return scanCredential(s.q.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM auth WHERE provider_sn = $1 AND provider_identity = $2`,
		providerSN, identity,
	))
}

func (s pgAuth) Insert(ctx context.Context, cred *Credential) (*Credential, error) {
	return scanCredential(s.q.QueryRowContext(ctx,
		`INSERT INTO auth (id, user_sn, provider_sn, provider_identity, hashed_secret)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+credentialColumns,
		cred.ID, cred.UserSN, cred.ProviderSN, cred.ProviderIdentity, cred.SecretHash,
	))
}

func (s pgAuth) SetResetToken(ctx context.Context, userSN, providerSN int64, tokenHash string, expiry time.Time) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE auth SET reset_token = $3, reset_token_expiry = $4, updated_at = NOW()
		 WHERE user_sn = $1 AND provider_sn = $2`,
		userSN, providerSN, tokenHash, expiry,
	)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s pgAuth) ConsumeResetToken(ctx context.Context, userSN, providerSN int64, newSecretHash string) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE auth SET hashed_secret = $3, reset_token = NULL,
			reset_token_expiry = NULL, updated_at = NOW()
		 WHERE user_sn = $1 AND provider_sn = $2`,
		userSN, providerSN, newSecretHash,
	)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

var _ AuthStore = pgAuth{}

type pgProviders struct {
	q querier
}

func (s pgProviders) FindByName(ctx context.Context, name string) (*Provider, error) {
	provider := &Provider{}
	err := s.q.QueryRowContext(ctx,
		`SELECT sn, name FROM providers WHERE name = $1`,
		name,
	).Scan(&provider.SN, &provider.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan provider: %w", err)
	}
	return provider, nil
}

var _ ProviderStore = pgProviders{}
