package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tmarlow/authcore/audit"
	"github.com/tmarlow/authcore/device"
	"github.com/tmarlow/authcore/jwt"
	"github.com/tmarlow/authcore/lockout"
	"github.com/tmarlow/authcore/ratelimit"
	"github.com/tmarlow/authcore/token"
)

// Builder assembles an Engine. Every store has an in-memory default; a
// Redis client upgrades the defaults to Redis-backed implementations, and
// explicit With*-injected stores win over both.
type Builder struct {
	config Config
	redis  *redis.Client

	tokenRepo      token.Repository
	deviceRepo     device.Repository
	lockoutStore   lockout.Store
	loginLimiter   ratelimit.Limiter
	refreshLimiter ratelimit.Limiter
	sink           audit.Sink
	verifier       CredentialVerifier
	clock          Clock

	built bool
}

func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration. Zero-valued sections are filled
// from defaults at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis backs every store the caller did not inject explicitly with
// Redis: token families, lockout counters, rate limiting.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithTokenRepository(repo token.Repository) *Builder {
	b.tokenRepo = repo
	return b
}

func (b *Builder) WithDeviceRepository(repo device.Repository) *Builder {
	b.deviceRepo = repo
	return b
}

func (b *Builder) WithLockoutStore(store lockout.Store) *Builder {
	b.lockoutStore = store
	return b
}

// WithRateLimiter overrides the login limiter.
func (b *Builder) WithRateLimiter(l ratelimit.Limiter) *Builder {
	b.loginLimiter = l
	return b
}

// WithEventSink sets the audit destination. Routine events reach it through
// the async dispatcher (when enabled); reuse events are written to it
// synchronously.
func (b *Builder) WithEventSink(sink audit.Sink) *Builder {
	b.sink = sink
	return b
}

// WithVerifier sets the credential check. Required.
func (b *Builder) WithVerifier(v CredentialVerifier) *Builder {
	b.verifier = v
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// Build validates the configuration and wires the engine. The builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.verifier == nil {
		return nil, errors.New("credential verifier required")
	}

	cfg := applyDefaults(b.config)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	sink := b.sink
	if sink == nil {
		sink = audit.NoOpSink{}
	}

	tokenRepo := b.tokenRepo
	deviceRepo := b.deviceRepo
	lockoutStore := b.lockoutStore
	loginLimiter := b.loginLimiter
	refreshLimiter := b.refreshLimiter

	if b.redis != nil {
		if tokenRepo == nil {
			tokenRepo = token.NewRedisRepository(b.redis)
		}
		if deviceRepo == nil {
			deviceRepo = device.NewRedisRepository(b.redis)
		}
		if lockoutStore == nil {
			lockoutStore = lockout.NewRedisStore(b.redis, cfg.Lockout.FailureWindow, cfg.Lockout.EscalationDecay)
		}
		if loginLimiter == nil {
			loginLimiter = ratelimit.NewRedisLimiter(b.redis, ratelimit.RedisConfig{
				Window:      cfg.RateLimit.Window,
				MaxRequests: cfg.RateLimit.MaxRequests,
			})
		}
		if refreshLimiter == nil && cfg.RateLimit.RefreshMaxRequests > 0 {
			refreshLimiter = ratelimit.NewRedisLimiter(b.redis, ratelimit.RedisConfig{
				Window:      cfg.RateLimit.Window,
				MaxRequests: cfg.RateLimit.RefreshMaxRequests,
				KeyPrefix:   "rlr:",
			})
		}
	}
	if tokenRepo == nil {
		tokenRepo = token.NewMemoryRepository()
	}
	if deviceRepo == nil {
		deviceRepo = device.NewMemoryRepository()
	}
	if lockoutStore == nil {
		lockoutStore = lockout.NewMemoryStore(cfg.Lockout.FailureWindow, cfg.Lockout.EscalationDecay, clock.Now)
	}
	if loginLimiter == nil {
		loginLimiter = ratelimit.NewSlidingWindow(cfg.RateLimit.limiterConfig(), clock.Now)
	}
	if refreshLimiter == nil && cfg.RateLimit.RefreshMaxRequests > 0 {
		refreshLimiter = ratelimit.NewSlidingWindow(ratelimit.Config{
			Window:      cfg.RateLimit.Window,
			MaxRequests: cfg.RateLimit.RefreshMaxRequests,
			Shards:      cfg.RateLimit.Shards,
		}, clock.Now)
	}

	engine := &Engine{
		config:         cfg,
		clock:          clock,
		verifier:       b.verifier,
		sink:           sink,
		dispatcher:     audit.NewDispatcher(cfg.Audit.dispatcherConfig(), sink),
		metrics:        NewMetrics(cfg.Metrics),
		loginLimiter:   loginLimiter,
		refreshLimiter: refreshLimiter,
		lockouts:       lockoutStore,
		policy: lockout.NewPolicy(lockout.Config{
			MaxAttempts: cfg.Lockout.MaxAttempts,
			Duration:    cfg.Lockout.Duration,
			Backoff:     cfg.Lockout.Backoff,
		}),
		devices: device.NewManager(deviceRepo, clock.Now),
		tokens: token.NewManager(tokenRepo, sink, token.Config{
			TTL:   cfg.Token.TTL,
			Grace: cfg.Token.RotationGrace,
		}, clock.Now),
	}

	if cfg.JWT.enabled() {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			SigningMethod: cfg.JWT.SigningMethod,
			PrivateKey:    cfg.JWT.PrivateKey,
			PublicKey:     cfg.JWT.PublicKey,
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			Leeway:        cfg.JWT.Leeway,
		})
		if err != nil {
			return nil, err
		}
		engine.jwt = jm
	}

	b.built = true
	return engine, nil
}

// applyDefaults fills zero-valued sections so WithConfig callers only need
// to set what they care about.
func applyDefaults(cfg Config) Config {
	def := defaultConfig()
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = def.RateLimit.Window
	}
	if cfg.RateLimit.MaxRequests == 0 {
		cfg.RateLimit.MaxRequests = def.RateLimit.MaxRequests
	}
	if cfg.RateLimit.Shards == 0 {
		cfg.RateLimit.Shards = def.RateLimit.Shards
	}
	if cfg.Lockout.MaxAttempts == 0 {
		cfg.Lockout.MaxAttempts = def.Lockout.MaxAttempts
	}
	if cfg.Lockout.Duration == 0 {
		cfg.Lockout.Duration = def.Lockout.Duration
	}
	if cfg.Lockout.FailureWindow == 0 {
		cfg.Lockout.FailureWindow = def.Lockout.FailureWindow
	}
	if cfg.Lockout.EscalationDecay == 0 {
		cfg.Lockout.EscalationDecay = def.Lockout.EscalationDecay
	}
	if cfg.Token.TTL == 0 {
		cfg.Token.TTL = def.Token.TTL
	}
	return cfg
}
