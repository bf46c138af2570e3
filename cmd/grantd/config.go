package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	goGrant "github.com/MrEthical07/goGrant"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// serverConfig is the process configuration read from GRANT_* variables.
type serverConfig struct {
	Addr            string        `env:"GRANT_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"GRANT_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"GRANT_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	RedisURL    string `env:"GRANT_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	DatabaseURL string `env:"GRANT_DATABASE_URL"`

	ClientID    string `env:"GRANT_CLIENT_ID,required"`
	RedirectURI string `env:"GRANT_REDIRECT_URI,required"`
	Issuer      string `env:"GRANT_ISSUER"`
	JWTKey      string `env:"GRANT_JWT_KEY,required,unset"`

	AuthCodeTTL          time.Duration `env:"GRANT_AUTH_CODE_TTL" envDefault:"5m"`
	AccessTTL            time.Duration `env:"GRANT_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL           time.Duration `env:"GRANT_REFRESH_TTL" envDefault:"720h"`
	RecoveryTTL          time.Duration `env:"GRANT_RECOVERY_TTL" envDefault:"30m"`
	EmailVerificationTTL time.Duration `env:"GRANT_EMAIL_VERIFICATION_TTL" envDefault:"24h"`

	MaxLoginAttempts int  `env:"GRANT_MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	IPThrottle       bool `env:"GRANT_IP_THROTTLE" envDefault:"true"`

	ProductName  string `env:"GRANT_PRODUCT_NAME" envDefault:"goGrant"`
	SMTPHost     string `env:"GRANT_SMTP_HOST"`
	SMTPPort     string `env:"GRANT_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"GRANT_SMTP_USERNAME"`
	SMTPPassword string `env:"GRANT_SMTP_PASSWORD,unset"`
	MailFrom     string `env:"GRANT_MAIL_FROM"`

	KafkaBrokers []string `env:"GRANT_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"GRANT_KAFKA_TOPIC" envDefault:"grant-events"`

	GoogleClientID       string `env:"GRANT_GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `env:"GRANT_GOOGLE_CLIENT_SECRET,unset"`
	GoogleRedirectURI    string `env:"GRANT_GOOGLE_REDIRECT_URI"`
	GoogleDiscoveryURL   string `env:"GRANT_GOOGLE_DISCOVERY_URL"`
	FacebookClientID     string `env:"GRANT_FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `env:"GRANT_FACEBOOK_CLIENT_SECRET,unset"`
	FacebookRedirectURI  string `env:"GRANT_FACEBOOK_REDIRECT_URI"`
	FacebookDiscoveryURL string `env:"GRANT_FACEBOOK_DISCOVERY_URL"`
}

// loadConfig reads an optional .env file and then the environment.
func loadConfig(files ...string) (serverConfig, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return serverConfig{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c serverConfig) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// engineConfig maps the process configuration onto goGrant.Config.
func (c serverConfig) engineConfig() goGrant.Config {
	cfg := goGrant.DefaultConfig()
	cfg.Client.ClientID = c.ClientID
	cfg.Client.RedirectURI = c.RedirectURI
	cfg.JWT.Issuer = c.Issuer
	cfg.JWT.PrivateKey = []byte(c.JWTKey)
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.Grants.AuthCodeTTL = c.AuthCodeTTL
	cfg.Grants.RefreshTTL = c.RefreshTTL
	cfg.Grants.RecoveryTTL = c.RecoveryTTL
	cfg.Grants.EmailVerificationTTL = c.EmailVerificationTTL
	cfg.Security.MaxLoginAttempts = c.MaxLoginAttempts
	cfg.Security.EnableIPThrottle = c.IPThrottle
	cfg.Mail.ProductName = c.ProductName
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	providers := map[string]goGrant.ProviderConfig{}
	if c.GoogleClientID != "" {
		providers["google"] = goGrant.ProviderConfig{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			RedirectURI:  c.GoogleRedirectURI,
			DiscoveryURL: c.GoogleDiscoveryURL,
		}
	}
	if c.FacebookClientID != "" {
		providers["facebook"] = goGrant.ProviderConfig{
			ClientID:     c.FacebookClientID,
			ClientSecret: c.FacebookClientSecret,
			RedirectURI:  c.FacebookRedirectURI,
			DiscoveryURL: c.FacebookDiscoveryURL,
		}
	}
	if len(providers) > 0 {
		cfg.Providers = providers
	}
	return cfg
}
