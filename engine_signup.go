package goGrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goGrant/internal/codec"
	"github.com/MrEthical07/goGrant/password"
	"github.com/MrEthical07/goGrant/userstore"
)

// SignUp registers a local account and issues an authorization code for it.
//
// An account missing required fields is still created, in the user mirror
// only, and the code is issued so the client can drive the completion flow.
// An email owned by another account fails with ErrEmailAlreadyInUse and
// leaves nothing behind.
func (e *Engine) SignUp(ctx context.Context, in SignUpInput, req AuthRequest) (*AuthorizationCode, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.checkAuthRequest(req); err != nil {
		return nil, err
	}

	rec := &userstore.Record{
		ID:        e.ids.New(),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     normalizeEmail(in.Email),
	}
	if in.Password != "" {
		digest, salt, err := e.hashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		rec.HashedPassword = digest
		rec.Salt = salt
	}

	outcome, err := e.completeness.CreateAccount(ctx, rec)
	if err != nil {
		return nil, mapUserError(err)
	}
	if outcome.EmailConflict() {
		if err := e.users.Delete(ctx, rec.ID); err != nil {
			e.logger.ErrorContext(ctx, "purge rejected sign-up failed", "user_id", rec.ID, "err", err)
		}
		e.metricInc(MetricSignUpEmailInUse)
		return nil, ErrEmailAlreadyInUse
	}

	code, err := e.issueAuthCode(ctx, rec.ID, req)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignUpSuccess)
	e.publish(ctx, Event{Name: EventUserSignUp, UserID: rec.ID, ClientID: req.ClientID})
	e.publish(ctx, Event{Name: EventAuthCodeIssued, UserID: rec.ID, ClientID: req.ClientID, Grant: codec.Fingerprint(code)})

	e.logger.InfoContext(ctx, "user signed up",
		"user_id", rec.ID,
		"persisted", outcome.Persisted,
	)

	return &AuthorizationCode{Code: code, State: req.State}, nil
}

// SignIn verifies local credentials and issues an authorization code.
//
// Failed attempts count against the email, and the client IP attached with
// WithClientIP, until the budget is spent and ErrLoginRateLimited is
// returned.
func (e *Engine) SignIn(ctx context.Context, cred Credentials, req AuthRequest) (*AuthorizationCode, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.checkAuthRequest(req); err != nil {
		return nil, err
	}

	email := normalizeEmail(cred.Email)
	if email == "" || cred.Password == "" {
		return nil, ErrInvalidInput
	}
	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			err = mapRateError(err, ErrLoginRateLimited)
			if errors.Is(err, ErrLoginRateLimited) {
				e.metricInc(MetricSignInRateLimited)
			}
			return nil, err
		}
	}

	rec, err := e.users.GetRecordByField(ctx, userstore.FieldEmail, email)
	if err != nil {
		err = mapUserError(err)
		if errors.Is(err, ErrUserNotRegistered) {
			e.failLogin(ctx, email, ip)
		}
		return nil, err
	}
	if !rec.HasLocalCredential() {
		return nil, ErrNoLocalCredential
	}

	ok, err := e.passwordHash.Verify(rec.HashedPassword, cred.Password)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	if !ok {
		e.failLogin(ctx, email, ip)
		return nil, ErrInvalidPassword
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, email, ip); err != nil {
			e.logger.WarnContext(ctx, "reset login counter failed", "user_id", rec.ID, "err", err)
		}
	}
	e.upgradePassword(ctx, rec, cred.Password)

	code, err := e.issueAuthCode(ctx, rec.ID, req)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignInSuccess)
	e.publish(ctx, Event{Name: EventUserSignIn, UserID: rec.ID, ClientID: req.ClientID})
	e.publish(ctx, Event{Name: EventAuthCodeIssued, UserID: rec.ID, ClientID: req.ClientID, Grant: codec.Fingerprint(code)})

	return &AuthorizationCode{Code: code, State: req.State}, nil
}

func (e *Engine) failLogin(ctx context.Context, email, ip string) {
	e.metricInc(MetricSignInFailure)
	if e.rateLimiter == nil {
		return
	}
	if err := e.rateLimiter.IncrementLogin(ctx, email, ip); err != nil {
		e.logger.WarnContext(ctx, "count failed login", "err", err)
	}
}

// upgradePassword rehashes a verified password whose digest uses weaker
// parameters than the current config. Failures are logged only.
func (e *Engine) upgradePassword(ctx context.Context, rec *userstore.Record, plain string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.passwordHash.NeedsUpgrade(rec.HashedPassword)
	if err != nil || !needs {
		return
	}

	digest, salt, err := e.hashPassword(plain)
	if err != nil {
		e.logger.WarnContext(ctx, "password upgrade hash failed", "user_id", rec.ID, "err", err)
		return
	}
	if _, err := e.users.UpdatePersistently(ctx, rec.ID, userstore.Update{
		HashedPassword: &digest,
		Salt:           &salt,
	}); err != nil {
		e.logger.WarnContext(ctx, "password upgrade write failed", "user_id", rec.ID, "err", err)
	}
}

// hashPassword hashes plain with a fresh random salt and returns the digest
// and the encoded salt.
func (e *Engine) hashPassword(plain string) (string, string, error) {
	salt, err := e.passwordHash.NewSalt()
	if err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	digest, err := e.passwordHash.Hash(plain, salt)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return "", "", err
	}
	return digest, password.EncodeSalt(salt), nil
}
