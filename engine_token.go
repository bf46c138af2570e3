package goGrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGrant/internal/codec"
	"github.com/MrEthical07/goGrant/internal/stores"
	"github.com/MrEthical07/goGrant/jwt"
	"github.com/MrEthical07/goGrant/session"
	"github.com/MrEthical07/goGrant/usercache"
)

// ValidateAuthCode exchanges an authorization code for a token pair.
//
// The grant is consumed before any binding check, so a code is spent by
// its first presentation whatever the outcome. Of any number of concurrent
// exchanges of one code at most one succeeds; the rest fail with
// ErrGrantNotFound.
func (e *Engine) ValidateAuthCode(ctx context.Context, in CodeExchange, clientID string) (*TokenResponse, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	resp, err := e.validateAuthCode(ctx, in, clientID)
	if err != nil {
		e.metricInc(MetricCodeExchangeFailure)
		return nil, err
	}
	e.metricInc(MetricCodeExchangeSuccess)
	return resp, nil
}

func (e *Engine) validateAuthCode(ctx context.Context, in CodeExchange, clientID string) (*TokenResponse, error) {
	if in.GrantType != GrantTypeAuthorizationCode {
		return nil, ErrInvalidGrantType
	}
	if err := codec.Validate(in.Code); err != nil {
		return nil, ErrInvalidCodeFormat
	}

	grant, err := e.authGrants.GetAndDeleteByKey(ctx, in.Code)
	if err != nil {
		return nil, mapGrantError(err)
	}
	if grant.GrantType != GrantTypeAuthorizationCode {
		return nil, ErrInvalidGrantType
	}
	if err := checkBinding(grant, clientID, in.State, in.RedirectURI); err != nil {
		return nil, err
	}

	entry, validation, err := e.userValidation(ctx, grant.UserID)
	if err != nil {
		return nil, err
	}

	minted, err := e.mintTokens(entry, grant.Nonce)
	if err != nil {
		return nil, err
	}
	sess := &session.Session{Token: minted.access, UserID: grant.UserID, RefreshRef: minted.refresh}
	if err := e.sessions.Create(ctx, sess, e.jwtManager.AccessTTL()); err != nil {
		return nil, mapSessionError(err)
	}
	e.metricInc(MetricSessionCreated)
	e.publish(ctx, Event{
		Name:       EventSessionCreated,
		UserID:     grant.UserID,
		ClientID:   clientID,
		SessionKey: session.Key(minted.access),
	})

	if err := e.storeRefreshGrant(ctx, grant, minted); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "authorization code exchanged",
		"user_id", grant.UserID,
		"grant", codec.Fingerprint(in.Code),
	)

	return &TokenResponse{
		User:    validation.User,
		Token:   minted.tokenSet(),
		Warning: validation.Warning,
	}, nil
}

// RefreshToken spends a refresh token and issues a new pair. The session
// behind the previous access token moves to the new one; a session that
// merely expired is recreated. A refresh token presented a second time
// fails with ErrSessionAlreadyRotated, and of two concurrent refreshes with
// the same token exactly one succeeds. Refresh tokens of sessions closed by
// LogOut or CloseAllSessions fail with ErrGrantNotFound.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken, clientID string) (*TokenResponse, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	resp, err := e.refreshToken(ctx, refreshToken, clientID)
	if err != nil {
		if errors.Is(err, ErrSessionAlreadyRotated) {
			e.metricInc(MetricRefreshReplayDetected)
		}
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}
	e.metricInc(MetricRefreshSuccess)
	return resp, nil
}

func (e *Engine) refreshToken(ctx context.Context, refreshToken, clientID string) (*TokenResponse, error) {
	if err := codec.Validate(refreshToken); err != nil {
		return nil, ErrInvalidCodeFormat
	}

	grant, err := e.authGrants.GetByKey(ctx, refreshToken)
	if err != nil {
		return nil, mapGrantError(err)
	}
	if grant.GrantType != GrantTypeRefreshToken {
		return nil, ErrInvalidGrantType
	}
	if grant.ClientID != clientID {
		return nil, ErrClientMismatch
	}

	entry, validation, err := e.userValidation(ctx, grant.UserID)
	if err != nil {
		return nil, err
	}

	minted, err := e.mintTokens(entry, grant.Nonce)
	if err != nil {
		return nil, err
	}

	err = e.sessions.Rotate(ctx, session.RotateRequest{
		GrantKey:      e.authGrants.Key(refreshToken),
		OldToken:      grant.SessionRef,
		NewToken:      minted.access,
		NewRefreshRef: minted.refresh,
		UserID:        grant.UserID,
	}, e.jwtManager.AccessTTL())
	if err != nil {
		if errors.Is(err, session.ErrAlreadyRotated) {
			e.logger.WarnContext(ctx, "refresh token replayed",
				"user_id", grant.UserID,
				"grant", codec.Fingerprint(refreshToken),
			)
		}
		return nil, mapSessionError(err)
	}

	if err := e.storeRefreshGrant(ctx, grant, minted); err != nil {
		return nil, err
	}

	e.publish(ctx, Event{
		Name:               EventSessionRefreshed,
		UserID:             grant.UserID,
		ClientID:           clientID,
		SessionKey:         session.Key(minted.access),
		PreviousSessionKey: session.Key(grant.SessionRef),
	})

	return &TokenResponse{
		User:    validation.User,
		Token:   minted.tokenSet(),
		Warning: validation.Warning,
	}, nil
}

// GetUserValidation returns the display data of userID and, when the
// account still has missing items, its warning. A cold mirror is
// repopulated from the durable store.
func (e *Engine) GetUserValidation(ctx context.Context, userID string) (*UserValidation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	_, validation, err := e.userValidation(ctx, userID)
	return validation, err
}

func (e *Engine) userValidation(ctx context.Context, userID string) (*usercache.Entry, *UserValidation, error) {
	entry, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, mapUserError(err)
	}

	validation := &UserValidation{User: displayOf(entry)}
	if len(entry.MissingItems) > 0 {
		validation.Warning = &Warning{
			Message:      entry.WarningMessage,
			MissingItems: append([]string(nil), entry.MissingItems...),
		}
	}
	return entry, validation, nil
}

func displayOf(entry *usercache.Entry) UserDisplay {
	return UserDisplay{
		ID:        entry.ID,
		FirstName: entry.FirstName,
		LastName:  entry.LastName,
		Email:     entry.Email,
		Picture:   entry.Picture,
	}
}

type mintedTokens struct {
	access    string
	expiresAt time.Time
	refresh   string
	now       time.Time
}

func (m mintedTokens) tokenSet() TokenSet {
	expiresIn := int64(m.expiresAt.Sub(m.now).Round(time.Second) / time.Second)
	return TokenSet{
		AccessToken:  m.access,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    expiresIn,
		RefreshToken: m.refresh,
	}
}

func (e *Engine) mintTokens(entry *usercache.Entry, nonce string) (mintedTokens, error) {
	now := time.Now()
	access, exp, err := e.jwtManager.CreateAccess(jwt.Identity{
		UserID:     entry.ID,
		GivenName:  entry.FirstName,
		FamilyName: entry.LastName,
		Email:      entry.Email,
		Picture:    entry.Picture,
		Nonce:      nonce,
	})
	if err != nil {
		return mintedTokens{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := e.codes.Generate()
	if err != nil {
		return mintedTokens{}, err
	}
	return mintedTokens{access: access, expiresAt: exp, refresh: refresh, now: now}, nil
}

// storeRefreshGrant records the refresh token of minted, bound to the same
// client as prev, pointing at the new access token's session and stamped
// with the owner's current refresh generation.
func (e *Engine) storeRefreshGrant(ctx context.Context, prev *stores.Grant, minted mintedTokens) error {
	generation, err := e.sessions.RefreshGeneration(ctx, prev.UserID, e.config.Grants.RefreshTTL)
	if err != nil {
		return mapSessionError(err)
	}
	_, err = e.authGrants.Create(ctx, minted.refresh, stores.Grant{
		GrantType:   GrantTypeRefreshToken,
		ClientID:    prev.ClientID,
		RedirectURI: prev.RedirectURI,
		State:       prev.State,
		Nonce:       prev.Nonce,
		UserID:      prev.UserID,
		SessionRef:  minted.access,
		Generation:  generation,
	}, e.config.Grants.RefreshTTL)
	return mapGrantError(err)
}
