package goGrant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goGrant/provider"
)

// Config is the complete engine configuration. Build it from
// [DefaultConfig] and override the fields that differ.
type Config struct {
	Client    ClientConfig
	Grants    GrantConfig
	JWT       JWTConfig
	Password  PasswordConfig
	UserCache UserCacheConfig
	Events    EventsConfig
	Security  SecurityConfig
	Mail      MailConfig
	Providers map[string]ProviderConfig
	Metrics   MetricsConfig
}

/*
====================================
CLIENT CONFIG
====================================
*/

// ClientConfig identifies the single registered client. Every grant is
// issued to ClientID and bound to RedirectURI.
type ClientConfig struct {
	ClientID    string
	RedirectURI string
	Scope       string
}

/*
====================================
GRANT CONFIG
====================================
*/

// GrantConfig holds the grant lifetimes. Each is independent of the others
// and of the access-token lifetime.
type GrantConfig struct {
	AuthCodeTTL          time.Duration
	RefreshTTL           time.Duration
	RecoveryTTL          time.Duration
	EmailVerificationTTL time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access-token signing. Tokens are issued to the
// registered client id.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default), "ed25519" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters. SaltLength is the size of the
// per-user random salt.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
USER CACHE CONFIG
====================================
*/

// UserCacheConfig sets the lifetimes of user:<id> mirrors. TTL slides on
// every read of a persisted account. PendingTTL bounds how long an
// incomplete account waits for its missing data.
type UserCacheConfig struct {
	TTL        time.Duration
	PendingTTL time.Duration
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig controls delivery to the external event sink. Session
// bookkeeping always runs inline.
type EventsConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds the request budgets. A zero Max disables a budget.
type SecurityConfig struct {
	EnableIPThrottle     bool
	MaxLoginAttempts     int
	LoginCooldown        time.Duration
	MaxRecoveryMails     int
	MaxVerificationMails int
	MailWindow           time.Duration
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig configures recovery and verification mail.
type MailConfig struct {
	ProductName string
}

/*
====================================
PROVIDER CONFIG
====================================
*/

// ProviderConfig configures one OpenID provider. The map key in
// Config.Providers is the provider name used in routes; "google" and
// "facebook" get their published endpoints and scopes when Discovery is
// left empty.
//
// DiscoveryURL names a discovery document that [Config.ResolveDiscovery]
// fetches into Discovery before the engine is built.
type ProviderConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	Scopes        []string
	CallbackScope string
	DiscoveryURL  string
	Discovery     provider.Discovery
}

// ResolveDiscovery fills Discovery for every provider that names a
// DiscoveryURL and has no endpoints configured. Documents are fetched
// through cache, so providers sharing a URL cost one request.
func (c *Config) ResolveDiscovery(ctx context.Context, cache *provider.DiscoveryCache) error {
	for name, p := range c.Providers {
		if p.DiscoveryURL == "" || p.Discovery.AuthorizationEndpoint != "" || p.Discovery.TokenEndpoint != "" {
			continue
		}
		doc, err := cache.Get(ctx, p.DiscoveryURL)
		if err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		p.Discovery = *doc
		c.Providers[name] = p
	}
	return nil
}

// MetricsConfig enables the in-process counters read by the exporters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Client and signing material
// must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Client: ClientConfig{
			Scope: "openid email profile",
		},
		Grants: GrantConfig{
			AuthCodeTTL:          5 * time.Minute,
			RefreshTTL:           30 * 24 * time.Hour,
			RecoveryTTL:          30 * time.Minute,
			EmailVerificationTTL: 24 * time.Hour,
		},
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     32,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		UserCache: UserCacheConfig{
			TTL:        24 * time.Hour,
			PendingTTL: 7 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Async:      true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Security: SecurityConfig{
			EnableIPThrottle:     true,
			MaxLoginAttempts:     5,
			LoginCooldown:        15 * time.Minute,
			MaxRecoveryMails:     3,
			MaxVerificationMails: 3,
			MailWindow:           time.Hour,
		},
		Mail: MailConfig{
			ProductName: "goGrant",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.Providers != nil {
		out.Providers = make(map[string]ProviderConfig, len(cfg.Providers))
		for name, p := range cfg.Providers {
			p.Scopes = append([]string(nil), p.Scopes...)
			out.Providers[name] = p
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// Client
	if strings.TrimSpace(c.Client.ClientID) == "" {
		return errors.New("Client ClientID must be set")
	}
	if err := validateRedirectURI(c.Client.RedirectURI); err != nil {
		return err
	}

	// Grants
	if c.Grants.AuthCodeTTL <= 0 {
		return errors.New("Grants AuthCodeTTL must be > 0")
	}
	if c.Grants.RefreshTTL <= 0 {
		return errors.New("Grants RefreshTTL must be > 0")
	}
	if c.Grants.RecoveryTTL <= 0 {
		return errors.New("Grants RecoveryTTL must be > 0")
	}
	if c.Grants.EmailVerificationTTL <= 0 {
		return errors.New("Grants EmailVerificationTTL must be > 0")
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
	}
	if c.JWT.SigningMethod == "ed25519" && (len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0) {
		return errors.New("ed25519 requires PrivateKey and PublicKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.Memory == 0 || c.Password.Time == 0 || c.Password.Parallelism == 0 {
		return errors.New("Password argon2 parameters must be > 0")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}

	// User cache
	if c.UserCache.TTL <= 0 {
		return errors.New("UserCache TTL must be > 0")
	}
	if c.UserCache.PendingTTL <= 0 {
		return errors.New("UserCache PendingTTL must be > 0")
	}

	// Events
	if c.Events.Async && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when Async is true")
	}

	// Security
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldown <= 0 {
		return errors.New("Security LoginCooldown must be > 0 when MaxLoginAttempts is set")
	}
	if (c.Security.MaxRecoveryMails > 0 || c.Security.MaxVerificationMails > 0) && c.Security.MailWindow <= 0 {
		return errors.New("Security MailWindow must be > 0 when mail budgets are set")
	}

	// Providers
	for name, p := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return errors.New("Providers contains an empty name")
		}
		if p.ClientID == "" || p.ClientSecret == "" {
			return fmt.Errorf("Provider %s requires ClientID and ClientSecret", name)
		}
		if p.RedirectURI == "" {
			return fmt.Errorf("Provider %s requires RedirectURI", name)
		}
		if p.DiscoveryURL != "" {
			u, err := url.Parse(p.DiscoveryURL)
			if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
				return fmt.Errorf("Provider %s DiscoveryURL must be an absolute http(s) URL", name)
			}
		}
	}

	return nil
}

func validateRedirectURI(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("Client RedirectURI must be set")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("Client RedirectURI must be an absolute URL")
	}
	if u.Fragment != "" {
		return errors.New("Client RedirectURI must not contain a fragment")
	}
	return nil
}
