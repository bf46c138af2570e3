package goGrant

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MrEthical07/goGrant/internal/codec"
	"github.com/MrEthical07/goGrant/internal/ids"
	"github.com/MrEthical07/goGrant/internal/rate"
	"github.com/MrEthical07/goGrant/internal/stores"
	"github.com/MrEthical07/goGrant/jwt"
	"github.com/MrEthical07/goGrant/mail"
	"github.com/MrEthical07/goGrant/password"
	"github.com/MrEthical07/goGrant/provider"
	"github.com/MrEthical07/goGrant/session"
	"github.com/MrEthical07/goGrant/usercache"
	"github.com/MrEthical07/goGrant/userstore"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single use: configure it
// during initialization, call Build once, then discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore userstore.Store
	mailer    mail.Mailer
	providers []provider.Provider
	logger    *slog.Logger
	sink      EventSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client that holds grants, sessions, the user
// mirror and the rate-limit counters. Required. The client must talk to a
// single primary (standalone or Sentinel failover); a cluster client is
// rejected by Build because refresh rotation spans keys in different slots.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the durable user store. Required.
func (b *Builder) WithUserStore(store userstore.Store) *Builder {
	b.userStore = store
	return b
}

// WithMailer sets the mailer used for recovery and verification links.
// Without one, mails are written to the logger.
func (b *Builder) WithMailer(m mail.Mailer) *Builder {
	b.mailer = m
	return b
}

// WithProvider registers an identity provider in addition to those built
// from Config.Providers. A provider with the same name replaces the
// configured one.
func (b *Builder) WithProvider(p provider.Provider) *Builder {
	if p != nil {
		b.providers = append(b.providers, p)
	}
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEventSink sets the external observer of engine events.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if _, ok := b.redis.(*redis.ClusterClient); ok {
		return nil, errors.New("redis cluster is not supported: session scripts span slots")
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- CODES --------
	gen, err := ids.NewGenerator()
	if err != nil {
		return nil, err
	}

	// -------- USER CACHE --------
	users := usercache.New(b.redis, b.userStore, cfg.UserCache.TTL, cfg.UserCache.PendingTTL)

	// -------- PASSWORD --------
	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}

	// -------- JWT --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.Client.ClientID,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    true,
	})
	if err != nil {
		return nil, err
	}

	// -------- PROVIDERS --------
	providers, err := buildProviders(cfg, b.providers)
	if err != nil {
		return nil, err
	}

	// -------- MAIL --------
	mailer := b.mailer
	if mailer == nil {
		mailer = mail.LogMailer{Logger: logger}
	}

	sessions := session.NewRegistry(b.redis)

	engine := &Engine{
		config:             cfg,
		logger:             logger,
		ids:                gen,
		codes:              codec.New(gen),
		authGrants:         stores.NewGrantStore(b.redis, stores.NamespaceAuth),
		recoveryGrants:     stores.NewGrantStore(b.redis, stores.NamespaceRecovery),
		verificationGrants: stores.NewGrantStore(b.redis, stores.NamespaceEmailVerification),
		sessions:           sessions,
		users:              users,
		completeness:       usercache.NewCompleteness(users),
		passwordHash:       ph,
		jwtManager:         jm,
		providers:          providers,
		mailer:             mailer,
		bookkeeper:         &sessionBookkeeper{registry: sessions},
		sink:               b.sink,
		metrics:            NewMetrics(cfg.Metrics),
	}
	engine.events = newEventDispatcher(cfg.Events, b.sink, engine.eventDropped)

	// -------- RATE LIMITS --------
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle: cfg.Security.EnableIPThrottle,
		SignIn: rate.Bucket{
			Name:   "signin",
			Max:    cfg.Security.MaxLoginAttempts,
			Window: cfg.Security.LoginCooldown,
		},
		Recovery: rate.Bucket{
			Name:   "recovery",
			Max:    cfg.Security.MaxRecoveryMails,
			Window: cfg.Security.MailWindow,
		},
		Verification: rate.Bucket{
			Name:   "verification",
			Max:    cfg.Security.MaxVerificationMails,
			Window: cfg.Security.MailWindow,
		},
	})

	b.built = true

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	logger.Info("grant engine built",
		"client_id", cfg.Client.ClientID,
		"providers", names,
		"events_async", engine.events != nil,
	)

	return engine, nil
}

func buildProviders(cfg Config, extra []provider.Provider) (map[string]provider.Provider, error) {
	out := make(map[string]provider.Provider, len(cfg.Providers)+len(extra))
	for name, pc := range cfg.Providers {
		pcfg := provider.Config{
			Name:          name,
			ClientID:      pc.ClientID,
			ClientSecret:  pc.ClientSecret,
			RedirectURI:   pc.RedirectURI,
			Scopes:        append([]string(nil), pc.Scopes...),
			CallbackScope: pc.CallbackScope,
			Discovery:     pc.Discovery,
			Leeway:        cfg.JWT.Leeway,
		}

		var (
			p   *provider.OpenID
			err error
		)
		switch name {
		case "google":
			p, err = provider.Google(pcfg)
		case "facebook":
			p, err = provider.Facebook(pcfg)
		default:
			p, err = provider.NewOpenID(pcfg)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		out[name] = p
	}
	for _, p := range extra {
		out[p.Name()] = p
	}
	return out, nil
}
