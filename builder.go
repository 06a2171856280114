package guardian

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lockshift/guardian/internal/audit"
	"github.com/lockshift/guardian/internal/metrics"
	"github.com/lockshift/guardian/internal/rate"
	"github.com/lockshift/guardian/jwt"
	"github.com/lockshift/guardian/password"
	"github.com/lockshift/guardian/quota"
	"github.com/lockshift/guardian/session"
)

// Builder assembles an Engine. Use New, chain the With methods, then
// Build once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	stores    Stores
	sink      AuditSink
	deliverer OTPDeliverer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	built bool
}

// New returns a Builder primed with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing the rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores sets the persistence collaborators.
func (b *Builder) WithStores(s Stores) *Builder {
	b.stores = s
	return b
}

// WithAuditSink sets the destination for audit events. Without one,
// enabled auditing discards into a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithOTPDeliverer sets the side-channel that carries one-time codes to
// their targets.
func (b *Builder) WithOTPDeliverer(d OTPDeliverer) *Builder {
	b.deliverer = d
	return b
}

// WithLogger sets the operational logger. Defaults to slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the engine time source, for tests.
func (b *Builder) WithClock(fn func() time.Time) *Builder {
	if fn != nil {
		b.now = fn
	}
	return b
}

// WithIDGenerator overrides id generation, for tests.
func (b *Builder) WithIDGenerator(fn func() string) *Builder {
	if fn != nil {
		b.newID = fn
	}
	return b
}

// Build validates the configuration, wires every collaborator and
// returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.stores.Users == nil || b.stores.Otps == nil || b.stores.Providers == nil ||
		b.stores.Sessions == nil || b.stores.Quotas == nil ||
		b.stores.Plans == nil || b.stores.UserPlans == nil || b.stores.ServiceAccess == nil {
		return nil, errors.New("all stores required")
	}
	if b.deliverer == nil {
		return nil, errors.New("otp deliverer required")
	}

	hasher, err := password.New(password.Config{
		Salt:       cfg.Password.Salt,
		Iterations: cfg.Password.Iterations,
		KeyLength:  cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:     cfg.Token.Secret,
		Issuer:     cfg.Token.Issuer,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		Leeway:     cfg.Token.Leeway,
		Now:        b.now,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:    cfg,
		users:     b.stores.Users,
		otps:      b.stores.Otps,
		providers: b.stores.Providers,
		plans:     b.stores.Plans,
		userPlans: b.stores.UserPlans,
		accesses:  b.stores.ServiceAccess,
		hasher:    hasher,
		tokens:    tokens,
		deliverer: b.deliverer,
		log:       logger,
		now:       b.now,
		newID:     b.newID,
	}

	engine.metrics = metrics.New(cfg.Metrics.Enabled)
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     func() { engine.metricInc(metrics.AuditDropped) },
	}, b.sink)

	engine.limiter = rate.NewLimiter(rate.NewRedisCounterStore(b.redis), rate.Config{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
	})

	engine.sessions = session.NewManager(b.stores.Sessions, hasher, cfg.Session.TTL,
		session.WithClock(b.now), session.WithIDGenerator(b.newID))

	engine.access = quota.NewAccessValidator(b.stores.ServiceAccess, b.stores.Plans, b.stores.UserPlans,
		quota.WithValidatorClock(b.now))

	engine.quotas = quota.NewEngine(b.stores.Quotas, b.stores.Plans, b.stores.UserPlans, engine.access,
		quota.Config{
			FallbackLimit:  cfg.Quota.FallbackLimit,
			AnonymousLimit: cfg.Quota.AnonymousLimit,
			ResetPeriod:    cfg.Quota.ResetPeriod,
		},
		quota.WithClock(b.now),
		quota.WithIDGenerator(b.newID),
		quota.WithRecorder(mutationRecorder{engine: engine}),
	)

	b.built = true

	return engine, nil
}
