package goGrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGrant/internal/codec"
	"github.com/MrEthical07/goGrant/provider"
	"github.com/MrEthical07/goGrant/userstore"
)

// ProviderSignUp starts a sign-up or sign-in through the named provider.
//
// An authorization_code grant is stored for a fresh pending user id and its
// code, encoded, becomes the provider state. The authorization URI is
// checked for liveness before it is returned; an unreachable provider
// leaves no grant behind.
func (e *Engine) ProviderSignUp(ctx context.Context, name string, req AuthRequest) (*ProviderAuthorization, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	p, ok := e.providers[name]
	if !ok {
		return nil, ErrProviderUnknown
	}
	if err := e.checkAuthRequest(req); err != nil {
		return nil, err
	}

	pendingID := e.ids.New()
	code, err := e.issueAuthCode(ctx, pendingID, req)
	if err != nil {
		return nil, err
	}

	authURL := p.AuthURL(codec.EncodeState(code), req.Nonce)
	if err := p.CheckAvailable(ctx, authURL); err != nil {
		if derr := e.authGrants.Delete(ctx, code); derr != nil {
			e.logger.WarnContext(ctx, "drop provider grant failed", "provider", name, "err", derr)
		}
		e.logger.WarnContext(ctx, "provider unavailable", "provider", name, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	e.metricInc(MetricProviderSignUp)
	return &ProviderAuthorization{AuthorizationURI: authURL}, nil
}

// ProviderCallback finishes a provider flow started by ProviderSignUp.
//
// The callback must carry the provider's exact scope and a state that
// decodes to a live grant. The provider code is exchanged for an id_token
// whose nonce must equal the nonce of the grant. The identity is then
// matched to an account: first by provider subject, then by email when the
// provider verified it, and otherwise a new account is created under the
// pending id. The pre-issued grant is spent and a fresh authorization code
// for the resolved account is returned to the client.
func (e *Engine) ProviderCallback(ctx context.Context, name string, cb ProviderCallback) (*ProviderResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	p, ok := e.providers[name]
	if !ok {
		return nil, ErrProviderUnknown
	}
	res, err := e.providerCallback(ctx, p, cb)
	if err != nil {
		e.metricInc(MetricProviderCallbackFailure)
		return nil, err
	}
	e.metricInc(MetricProviderCallbackSuccess)
	return res, nil
}

func (e *Engine) providerCallback(ctx context.Context, p provider.Provider, cb ProviderCallback) (*ProviderResult, error) {
	if cb.Scope != p.Scope() {
		return nil, ErrInvalidScope
	}
	if cb.Code == "" {
		return nil, ErrInvalidInput
	}
	code, err := codec.DecodeState(cb.State)
	if err != nil {
		return nil, ErrInvalidCodeFormat
	}

	grant, err := e.authGrants.GetByKey(ctx, code)
	if err != nil {
		return nil, mapGrantError(err)
	}
	if grant.GrantType != GrantTypeAuthorizationCode {
		return nil, ErrInvalidGrantType
	}

	claims, err := p.Exchange(ctx, cb.Code)
	if err != nil {
		e.logger.WarnContext(ctx, "provider exchange failed", "provider", p.Name(), "err", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	if claims.Nonce != grant.Nonce {
		return nil, ErrNonceMismatch
	}

	userID, created, err := e.resolveProviderUser(ctx, p.Name(), grant.UserID, claims)
	if err != nil {
		return nil, err
	}

	if _, err := e.authGrants.GetAndDeleteByKey(ctx, code); err != nil {
		return nil, mapGrantError(err)
	}
	req := AuthRequest{
		ClientID:    grant.ClientID,
		RedirectURI: grant.RedirectURI,
		State:       grant.State,
		Nonce:       grant.Nonce,
	}
	final, err := e.issueAuthCode(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	if created {
		e.publish(ctx, Event{Name: EventUserSignUp, UserID: userID, ClientID: req.ClientID, Provider: p.Name()})
	} else {
		e.publish(ctx, Event{Name: EventUserSignIn, UserID: userID, ClientID: req.ClientID, Provider: p.Name()})
	}
	e.publish(ctx, Event{Name: EventAuthCodeIssued, UserID: userID, ClientID: req.ClientID, Provider: p.Name(), Grant: codec.Fingerprint(final)})

	e.logger.InfoContext(ctx, "provider callback completed",
		"provider", p.Name(),
		"user_id", userID,
		"created", created,
	)

	return &ProviderResult{
		RedirectURI: req.RedirectURI,
		Code:        final,
		State:       req.State,
		Created:     created,
	}, nil
}

// resolveProviderUser returns the account for claims, creating one under
// pendingID when no existing account matches.
func (e *Engine) resolveProviderUser(ctx context.Context, providerName, pendingID string, claims *provider.IDClaims) (string, bool, error) {
	identity := &userstore.ThirdPartyIdentity{
		Provider:      providerName,
		Email:         normalizeEmail(claims.Email),
		EmailVerified: claims.EmailVerified,
		Subject:       claims.Subject,
	}

	rec, err := e.users.GetRecordByField(ctx, userstore.FieldOpenID, userstore.IdentityKey(providerName, claims.Subject))
	switch {
	case err == nil:
		return rec.ID, false, nil
	case !errors.Is(mapUserError(err), ErrUserNotRegistered):
		return "", false, mapUserError(err)
	}

	if identity.Email != "" && identity.EmailVerified {
		rec, err := e.users.GetRecordByField(ctx, userstore.FieldEmail, identity.Email)
		switch {
		case err == nil && !rec.HasAuthMethod():
			return e.linkIdentity(ctx, rec, identity)
		case err == nil:
			// An account holds one credential. The new identity becomes an
			// incomplete account with the email flagged as taken.
			e.logger.InfoContext(ctx, "provider identity not linked: account has a credential",
				"provider", providerName,
				"user_id", rec.ID,
			)
		case !errors.Is(mapUserError(err), ErrUserNotRegistered):
			return "", false, mapUserError(err)
		}
	}

	outcome, err := e.completeness.CreateAccount(ctx, &userstore.Record{
		ID:            pendingID,
		FirstName:     claims.GivenName,
		LastName:      claims.FamilyName,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Picture:       claims.Picture,
		OpenID:        identity,
	})
	if err != nil {
		return "", false, mapUserError(err)
	}
	return outcome.Entry.ID, true, nil
}

// linkIdentity attaches identity to an existing account that has no
// credential yet. The provider verified the email, so the account's email
// counts as verified too.
func (e *Engine) linkIdentity(ctx context.Context, rec *userstore.Record, identity *userstore.ThirdPartyIdentity) (string, bool, error) {
	verified := true
	update := userstore.Update{OpenID: identity, EmailVerified: &verified}
	if _, err := e.users.UpdatePersistently(ctx, rec.ID, update); err != nil {
		return "", false, mapUserError(err)
	}
	e.logger.InfoContext(ctx, "provider identity linked", "provider", identity.Provider, "user_id", rec.ID)
	return rec.ID, false, nil
}
