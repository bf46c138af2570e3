package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var (
	// ErrUnavailable is returned when the authorization endpoint fails the
	// liveness check.
	ErrUnavailable = errors.New("identity provider unavailable")
	// ErrExchangeFailed is returned when the token endpoint rejects the code.
	ErrExchangeFailed = errors.New("provider code exchange failed")
	// ErrInvalidIDToken is returned when the id_token is absent or fails
	// issuer, audience or expiry checks.
	ErrInvalidIDToken = errors.New("invalid provider id_token")
	// ErrInvalidConfig is returned by constructors for incomplete configs.
	ErrInvalidConfig = errors.New("invalid provider config")
)

// Config configures one OpenID provider.
//
// CallbackScope is the exact scope string the provider echoes on its
// callback. It defaults to Scopes joined by a space.
type Config struct {
	Name          string
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	Scopes        []string
	CallbackScope string
	Discovery     Discovery
	HTTPClient    *http.Client
	Leeway        time.Duration
}

// IDClaims is the identity reported in a provider id_token.
type IDClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Nonce         string `json:"nonce"`
	jwt.RegisteredClaims
}

// Provider is an external identity provider.
type Provider interface {
	Name() string
	Scope() string
	AuthURL(state, nonce string) string
	CheckAvailable(ctx context.Context, authURL string) error
	Exchange(ctx context.Context, code string) (*IDClaims, error)
}

// OpenID is a Provider driven by a discovery document. Google and Facebook
// are OpenID values with provider defaults applied.
type OpenID struct {
	name   string
	scope  string
	oauth  *oauth2.Config
	issuer string
	client *http.Client
	leeway time.Duration
	now    func() time.Time
}

var _ Provider = (*OpenID)(nil)

// NewOpenID validates cfg and returns a provider.
func NewOpenID(cfg Config) (*OpenID, error) {
	switch {
	case strings.TrimSpace(cfg.Name) == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	case cfg.ClientID == "" || cfg.ClientSecret == "":
		return nil, fmt.Errorf("%w: %s client credentials are required", ErrInvalidConfig, cfg.Name)
	case cfg.RedirectURI == "":
		return nil, fmt.Errorf("%w: %s redirect uri is required", ErrInvalidConfig, cfg.Name)
	case len(cfg.Scopes) == 0:
		return nil, fmt.Errorf("%w: %s scopes are required", ErrInvalidConfig, cfg.Name)
	}
	if err := cfg.Discovery.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	scope := cfg.CallbackScope
	if scope == "" {
		scope = strings.Join(cfg.Scopes, " ")
	}

	return &OpenID{
		name:  cfg.Name,
		scope: scope,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       slices.Clone(cfg.Scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.Discovery.AuthorizationEndpoint,
				TokenURL:  cfg.Discovery.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		issuer: cfg.Discovery.Issuer,
		client: client,
		leeway: cfg.Leeway,
		now:    time.Now,
	}, nil
}

// Name returns the provider key used in routes and identity links.
func (o *OpenID) Name() string { return o.name }

// Scope returns the exact scope string expected on the callback.
func (o *OpenID) Scope() string { return o.scope }

// AuthURL builds the authorization URI carrying state and nonce.
func (o *OpenID) AuthURL(state, nonce string) string {
	var opts []oauth2.AuthCodeOption
	if nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", nonce))
	}
	return o.oauth.AuthCodeURL(state, opts...)
}

// CheckAvailable requests authURL without following redirects and fails
// unless the endpoint answers with a success or redirect status.
func (o *OpenID) CheckAvailable(ctx context.Context, authURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	client := *o.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s answered %d", ErrUnavailable, o.name, resp.StatusCode)
	}
	return nil
}

// Exchange trades code at the token endpoint and returns the id_token claims.
//
// The id_token arrives directly from the token endpoint over the provider's
// TLS connection, so its signature is not re-verified here. Issuer, audience
// and expiry are still enforced.
func (o *OpenID) Exchange(ctx context.Context, code string) (*IDClaims, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)

	token, err := o.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing id_token", ErrInvalidIDToken)
	}
	return o.decodeIDToken(raw)
}

func (o *OpenID) decodeIDToken(raw string) (*IDClaims, error) {
	claims := &IDClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidIDToken)
	}
	if o.issuer != "" && claims.Issuer != o.issuer {
		return nil, fmt.Errorf("%w: issuer %q", ErrInvalidIDToken, claims.Issuer)
	}
	if !slices.Contains(claims.Audience, o.oauth.ClientID) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidIDToken)
	}
	if claims.ExpiresAt != nil && o.now().After(claims.ExpiresAt.Add(o.leeway)) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidIDToken)
	}
	return claims, nil
}
