package store

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Memory is an in-memory Store used by the engine tests. A single mutex
// stands in for transaction isolation; that is enough for tests because
// every orchestrator performs its uniqueness checks before its first
// write inside the same InTx call.
type Memory struct {
	mu sync.Mutex

	nextUserSN int64
	nextCredSN int64
	users      map[int64]*User
	creds      map[int64]*Credential
	providers  map[string]*Provider
}

// NewMemory returns an empty store seeded with the "email" provider.
func NewMemory() *Memory {
	return &Memory{
		nextUserSN: 1,
		nextCredSN: 1,
		users:      map[int64]*User{},
		creds:      map[int64]*Credential{},
		providers:  map[string]*Provider{ProviderEmail: {SN: 1, Name: ProviderEmail}},
	}
}

type memoryView struct {
	m      *Memory
	locked bool
}

func (m *Memory) Users() UserStore         { return memUsers{view: &memoryView{m: m}} }
func (m *Memory) Auth() AuthStore          { return memAuth{view: &memoryView{m: m}} }
func (m *Memory) Providers() ProviderStore { return memProviders{view: &memoryView{m: m}} }

// InTx serializes the unit of work under the store mutex.
func (m *Memory) InTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&lockedMemory{m: m})
}

var _ Store = (*Memory)(nil)

// lockedMemory is the view handed to InTx callbacks; the caller already
// holds the mutex.
type lockedMemory struct {
	m *Memory
}

func (l *lockedMemory) Users() UserStore         { return memUsers{view: &memoryView{m: l.m, locked: true}} }
func (l *lockedMemory) Auth() AuthStore          { return memAuth{view: &memoryView{m: l.m, locked: true}} }
func (l *lockedMemory) Providers() ProviderStore { return memProviders{view: &memoryView{m: l.m, locked: true}} }

func (l *lockedMemory) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(l)
}

var _ Store = (*lockedMemory)(nil)

func (v *memoryView) lock() func() {
	if v.locked {
		return func() {}
	}
	v.m.mu.Lock()
	return v.m.mu.Unlock
}

type memUsers struct {
	view *memoryView
}

func (s memUsers) find(match func(*User) bool) (*User, error) {
	defer s.view.lock()()
	for _, user := range s.view.m.users {
		if match(user) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

func (s memUsers) FindByID(ctx context.Context, id string) (*User, error) {
	return s.find(func(u *User) bool { return u.ID == id })
}

func (s memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.find(func(u *User) bool { return u.Email == email })
}

func (s memUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.find(func(u *User) bool { return u.Username != "" && u.Username == username })
}

func (s memUsers) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return s.find(func(u *User) bool { return u.Phone != "" && u.Phone == phone })
}

func (s memUsers) Insert(ctx context.Context, user *User) (*User, error) {
	defer s.view.lock()()
	m := s.view.m

	clone := *user
	clone.SN = m.nextUserSN
	m.nextUserSN++
	now := time.Now()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	m.users[clone.SN] = &clone

	result := clone
	return &result, nil
}

func (s memUsers) SetEmailVerified(ctx context.Context, id string) error {
	defer s.view.lock()()
	for _, user := range s.view.m.users {
		if user.ID == id {
			user.IsEmailVerified = true
			user.UpdatedAt = time.Now()
			return nil
		}
	}
	return sql.ErrNoRows
}

var _ UserStore = memUsers{}

type memAuth struct {
	view *memoryView
}

func (s memAuth) FindByUser(ctx context.Context, userSN, providerSN int64) (*Credential, error) {
	defer s.view.lock()()
	for _, cred := range s.view.m.creds {
		if cred.UserSN == userSN && cred.ProviderSN == providerSN {
			clone := *cred
			return &clone, nil
		}
	}
	return nil, nil
}

func (s memAuth) FindByProviderIdentity(ctx context.Context, providerSN int64, identity string) (*Credential, error) {
	defer s.view.lock()()
	for _, cred := range s.view.m.creds {
		if cred.ProviderSN == providerSN && cred.ProviderIdentity == identity {
			clone := *cred
			return &clone, nil
		}
	}
	return nil, nil
}

func (s memAuth) Insert(ctx context.Context, cred *Credential) (*Credential, error) {
	defer s.view.lock()()
	m := s.view.m

	clone := *cred
	clone.SN = m.nextCredSN
	m.nextCredSN++
	now := time.Now()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	m.creds[clone.SN] = &clone

	result := clone
	return &result, nil
}

func (s memAuth) SetResetToken(ctx context.Context, userSN, providerSN int64, tokenHash string, expiry time.Time) error {
	defer s.view.lock()()
	for _, cred := range s.view.m.creds {
		if cred.UserSN == userSN && cred.ProviderSN == providerSN {
			cred.ResetTokenHash = tokenHash
			expiryCopy := expiry
			cred.ResetTokenExpiry = &expiryCopy
			cred.UpdatedAt = time.Now()
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s memAuth) ConsumeResetToken(ctx context.Context, userSN, providerSN int64, newSecretHash string) error {
	defer s.view.lock()()
	for _, cred := range s.view.m.creds {
		if cred.UserSN == userSN && cred.ProviderSN == providerSN {
			cred.SecretHash = newSecretHash
			cred.ResetTokenHash = ""
			cred.ResetTokenExpiry = nil
			cred.UpdatedAt = time.Now()
			return nil
		}
	}
	return sql.ErrNoRows
}

var _ AuthStore = memAuth{}

type memProviders struct {
	view *memoryView
}

func (s memProviders) FindByName(ctx context.Context, name string) (*Provider, error) {
	defer s.view.lock()()
	if provider, ok := s.view.m.providers[name]; ok {
		clone := *provider
		return &clone, nil
	}
	return nil, nil
}

var _ ProviderStore = memProviders{}
