package goGrant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goGrant/internal/codec"
	"github.com/MrEthical07/goGrant/internal/stores"
	"github.com/MrEthical07/goGrant/usercache"
	"github.com/MrEthical07/goGrant/userstore"
)

// RecoverAccount mails a single-use recovery link to email. An unknown email
// is a silent no-op so the result never reveals which addresses have
// accounts. Mail delivery failures are logged, not returned.
func (e *Engine) RecoverAccount(ctx context.Context, email string, req AuthRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.checkAuthRequest(req); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.HitRecovery(ctx, email); err != nil {
			return mapRateError(err, ErrRequestRateLimited)
		}
	}

	rec, err := e.users.GetRecordByField(ctx, userstore.FieldEmail, email)
	if err != nil {
		err = mapUserError(err)
		if errors.Is(err, ErrUserNotRegistered) {
			e.logger.DebugContext(ctx, "recovery requested for unknown email")
			return nil
		}
		return err
	}

	code, err := e.issueLinkGrant(ctx, e.recoveryGrants, grantTypeRecovery, rec.ID, rec.Email, req, e.config.Grants.RecoveryTTL)
	if err != nil {
		return err
	}

	link := linkURI(req.RedirectURI, code, "recover_account")
	subject := "Recover your " + e.config.Mail.ProductName + " account"
	body := "Hey, this is your single-use recovery link: " + link +
		"\nHere, you will set your new password. If you did not request an account recovery, ignore this email."

	if err := e.mailer.SendMail(ctx, rec.Email, subject, body); err != nil {
		e.logger.ErrorContext(ctx, "send recovery mail failed", "user_id", rec.ID, "err", err)
		return nil
	}

	e.metricInc(MetricRecoveryRequested)
	e.logger.InfoContext(ctx, "recovery mail sent", "user_id", rec.ID, "grant", codec.Fingerprint(code))
	return nil
}

// GetPwdResetter checks a recovery link without spending it and returns the
// display data of the account being recovered.
func (e *Engine) GetPwdResetter(ctx context.Context, link LinkCode, clientID string) (*UserDisplay, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	code, err := codec.Decode(link.Code)
	if err != nil {
		return nil, ErrInvalidCodeFormat
	}

	grant, err := e.recoveryGrants.GetByKey(ctx, code)
	if err != nil {
		return nil, mapGrantError(err)
	}
	if err := checkLinkGrant(grant, grantTypeRecovery, link, clientID); err != nil {
		return nil, err
	}
	entry, err := e.linkOwner(ctx, grant)
	if err != nil {
		return nil, err
	}

	display := displayOf(entry)
	return &display, nil
}

// ResetPassword spends a recovery link and replaces the account password
// with a fresh salt. Every live session of the account is closed.
func (e *Engine) ResetPassword(ctx context.Context, in PasswordReset, clientID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	err := e.resetPassword(ctx, in, clientID)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return err
	}
	e.metricInc(MetricPasswordResetSuccess)
	return nil
}

func (e *Engine) resetPassword(ctx context.Context, in PasswordReset, clientID string) error {
	if in.Password == "" {
		return ErrInvalidInput
	}
	code, err := codec.Decode(in.Code)
	if err != nil {
		return ErrInvalidCodeFormat
	}

	grant, err := e.recoveryGrants.GetAndDeleteByKey(ctx, code)
	if err != nil {
		return mapGrantError(err)
	}
	if err := checkLinkGrant(grant, grantTypeRecovery, in.LinkCode, clientID); err != nil {
		return err
	}
	if _, err := e.linkOwner(ctx, grant); err != nil {
		return err
	}

	digest, salt, err := e.hashPassword(in.Password)
	if err != nil {
		return err
	}
	if _, err := e.users.UpdatePersistently(ctx, grant.UserID, userstore.Update{
		HashedPassword: &digest,
		Salt:           &salt,
	}); err != nil {
		return mapUserError(err)
	}

	if _, err := e.CloseAllSessions(ctx, grant.UserID); err != nil {
		e.logger.WarnContext(ctx, "close sessions after reset failed", "user_id", grant.UserID, "err", err)
	}
	e.logger.InfoContext(ctx, "password reset", "user_id", grant.UserID)
	return nil
}

// issueLinkGrant stores a grant for a link mailed to mailedTo in grants.
func (e *Engine) issueLinkGrant(ctx context.Context, grants *stores.GrantStore, grantType, userID, mailedTo string, req AuthRequest, ttl time.Duration) (string, error) {
	code, err := e.codes.Generate()
	if err != nil {
		return "", err
	}
	_, err = grants.Create(ctx, code, stores.Grant{
		GrantType:   grantType,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		State:       req.State,
		UserID:      userID,
		MailedTo:    mailedTo,
	}, ttl)
	if err != nil {
		return "", mapGrantError(err)
	}
	return code, nil
}

// linkOwner loads the account a link grant belongs to. A link whose account
// changed its email after the mail went out is void: it proves control of
// the old address only.
func (e *Engine) linkOwner(ctx context.Context, grant *stores.Grant) (*usercache.Entry, error) {
	entry, err := e.users.GetByID(ctx, grant.UserID)
	if err != nil {
		return nil, mapUserError(err)
	}
	if grant.MailedTo == "" || normalizeEmail(entry.Email) != normalizeEmail(grant.MailedTo) {
		e.logger.WarnContext(ctx, "link used after email change", "user_id", grant.UserID)
		return nil, fmt.Errorf("%w: email changed since the link was mailed", ErrGrantNotFound)
	}
	return entry, nil
}

func checkLinkGrant(grant *stores.Grant, grantType string, link LinkCode, clientID string) error {
	if grant.GrantType != grantType {
		return ErrInvalidGrantType
	}
	return checkBinding(grant, clientID, link.State, link.RedirectURI)
}

// linkURI renders <redirectURI>?code=<encoded>&<flag>=true. An existing query
// on redirectURI is kept.
func linkURI(redirectURI, code, flag string) string {
	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%scode=%s&%s=true", redirectURI, sep, url.QueryEscape(codec.Encode(code)), flag)
}
