package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskloom/identity/password"
	"github.com/taskloom/identity/session"
	"github.com/taskloom/identity/store"
	"github.com/taskloom/identity/token"
)

// mailTimeout bounds background mail delivery so a stuck SMTP hop cannot
// pin goroutines forever.
const mailTimeout = 15 * time.Second

// Engine is the identity and session lifecycle core. Construct one with
// the Builder; a zero Engine is not usable.
type Engine struct {
	config  Config
	store   store.Store
	cache   *session.Cache
	tokens  *token.Authority
	hasher  *password.Hasher
	mailer  Mailer
	metrics *Metrics
	log     *slog.Logger
}

// TokenPair is one issued session: a short-lived access token and the
// refresh token that renews it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is what a successful login or registration returns.
type LoginResult struct {
	User   *store.User
	Tokens TokenPair
}

// RefreshResult carries the replacement access token. The refresh token
// is not rotated; it stays valid until its own expiry or the next login.
type RefreshResult struct {
	User        *store.User
	AccessToken string
}

// Builder assembles an Engine. Configure it with the With* methods and
// call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store
	mailer Mailer
	log    *slog.Logger

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.log = log
	return b
}

// Build validates the configuration, wires the subsystems, and returns
// the Engine. A Builder is single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewAuthority(b.config.Token)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = slog.Default()
	}
	mailer := b.mailer
	if mailer == nil {
		mailer = LogMailer{Log: log}
	}

	return &Engine{
		config:  b.config,
		store:   b.store,
		cache:   session.NewCache(b.redis),
		tokens:  tokens,
		hasher:  hasher,
		mailer:  mailer,
		metrics: NewMetrics(),
		log:     log,
	}, nil
}

// Ping reports whether the session cache is reachable. Exposed for
// health endpoints; a dead cache means logins and refreshes will fail.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.cache.Ping(ctx)
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.cache == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

// issueSession mints an access and refresh pair for the user and installs
// the refresh token as the user's current session. A second login simply
// overwrites the first.
func (e *Engine) issueSession(ctx context.Context, u *store.User) (TokenPair, error) {
	access, err := e.tokens.Issue(token.Access, u.ID, u.Email)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.tokens.Issue(token.Refresh, u.ID, u.Email)
	if err != nil {
		return TokenPair{}, err
	}
	if err := e.cache.SaveRefresh(ctx, u.ID, refresh, e.tokens.Lifetime(token.Refresh)); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// sendMail delivers in the background. Failures are logged, never
// surfaced: the triggering operation has already committed.
func (e *Engine) sendMail(kind string, send func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			e.log.Error("mail delivery failed",
				slog.String("kind", kind),
				slog.Any("error", err),
			)
		}
	}()
}
