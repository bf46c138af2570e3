package goGrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

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
)

// Grant types stored on recovery and email-verification grants.
const (
	grantTypeRecovery          = "recovery_code"
	grantTypeEmailVerification = "email_verification_code"
)

// Engine runs the grant flows. It is immutable after [Builder.Build] and
// safe for concurrent use.
type Engine struct {
	config             Config
	logger             *slog.Logger
	ids                *ids.Generator
	codes              *codec.Codec
	authGrants         *stores.GrantStore
	recoveryGrants     *stores.GrantStore
	verificationGrants *stores.GrantStore
	sessions           *session.Registry
	users              *usercache.Cache
	completeness       *usercache.Completeness
	passwordHash       *password.Argon2
	jwtManager         *jwt.Manager
	providers          map[string]provider.Provider
	mailer             mail.Mailer
	rateLimiter        *rate.Limiter
	bookkeeper         *sessionBookkeeper
	sink               EventSink
	events             *eventDispatcher
	metrics            *Metrics
}

// Close stops the event dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.events != nil {
		e.events.Close()
	}
}

// EventsDropped reports events the async dispatcher never queued: a full
// buffer under DropIfFull, a request cancelled while waiting for room, or an
// Emit after Close.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.events == nil {
		return 0
	}
	return e.events.Dropped()
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Providers returns the configured provider names.
func (e *Engine) Providers() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.providers))
	for name := range e.providers {
		names = append(names, name)
	}
	return names
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.authGrants == nil || e.sessions == nil || e.users == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	return nil
}

// publish runs session bookkeeping inline and hands the event to the
// external sink. Bookkeeping failures are logged and counted, never returned.
func (e *Engine) publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := e.bookkeeper.Observe(ctx, event); err != nil {
		e.metricInc(MetricBookkeepingFailure)
		e.logger.ErrorContext(ctx, "session bookkeeping failed",
			"event", string(event.Name),
			"user_id", event.UserID,
			"err", err,
		)
	}

	switch {
	case e.events != nil:
		e.events.Emit(ctx, event)
	case e.sink != nil:
		e.sink.Emit(ctx, event)
	}
}

func (e *Engine) eventDropped(event Event, reason dropReason) {
	e.logger.Warn("lifecycle event dropped",
		"event", string(event.Name),
		"user_id", event.UserID,
		"reason", string(reason),
	)
}

// checkAuthRequest binds a request to the registered client.
func (e *Engine) checkAuthRequest(req AuthRequest) error {
	if req.ClientID != e.config.Client.ClientID {
		return ErrClientMismatch
	}
	if req.RedirectURI != e.config.Client.RedirectURI {
		return ErrRedirectMismatch
	}
	return nil
}

// checkBinding compares a stored grant with the presented client binding.
func checkBinding(grant *stores.Grant, clientID, state, redirectURI string) error {
	if grant.ClientID != clientID {
		return ErrClientMismatch
	}
	if grant.State != state {
		return ErrStateMismatch
	}
	if grant.RedirectURI != redirectURI {
		return ErrRedirectMismatch
	}
	return nil
}

// issueAuthCode stores a fresh authorization_code grant for userID.
func (e *Engine) issueAuthCode(ctx context.Context, userID string, req AuthRequest) (string, error) {
	code, err := e.codes.Generate()
	if err != nil {
		return "", err
	}
	_, err = e.authGrants.Create(ctx, code, stores.Grant{
		GrantType:   GrantTypeAuthorizationCode,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		State:       req.State,
		Nonce:       req.Nonce,
		UserID:      userID,
	}, e.config.Grants.AuthCodeTTL)
	if err != nil {
		return "", mapGrantError(err)
	}
	return code, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func mapGrantError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrGrantNotFound):
		return ErrGrantNotFound
	case errors.Is(err, stores.ErrAlreadyRotated):
		return ErrSessionAlreadyRotated
	case errors.Is(err, stores.ErrGrantCorrupt):
		return fmt.Errorf("%w: %v", ErrGrantCorrupt, err)
	default:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}

func mapSessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrAlreadyRotated):
		return ErrSessionAlreadyRotated
	case errors.Is(err, session.ErrGrantGone):
		return ErrGrantNotFound
	case errors.Is(err, session.ErrUserNotRegistered):
		return ErrUserNotRegistered
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrInvalidAccessToken
	default:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}

func mapUserError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, usercache.ErrUserNotFound):
		return ErrUserNotRegistered
	case errors.Is(err, usercache.ErrPendingAccount):
		return ErrIncompleteAccountEditNotAllowed
	case errors.Is(err, usercache.ErrAccountComplete):
		return ErrAccountComplete
	case errors.Is(err, userstore.ErrDuplicateEmail):
		return ErrEmailAlreadyInUse
	case errors.Is(err, usercache.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
}

func mapRateError(err error, limited error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return limited
	default:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}
