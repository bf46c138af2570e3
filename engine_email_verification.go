package goGrant

import (
	"context"

	"github.com/MrEthical07/goGrant/internal/codec"
	"github.com/MrEthical07/goGrant/userstore"
)

// GetEmailVerification mails a single-use verification link for the primary
// email of the account that owns email.
//
// Unlike recovery, the caller learns whether the account exists and whether
// its email is already verified, and a mail delivery failure is returned as
// ErrMailUnavailable.
func (e *Engine) GetEmailVerification(ctx context.Context, email string, req AuthRequest) error {
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
		if err := e.rateLimiter.HitVerification(ctx, email); err != nil {
			return mapRateError(err, ErrRequestRateLimited)
		}
	}

	rec, err := e.users.GetRecordByField(ctx, userstore.FieldEmail, email)
	if err != nil {
		return mapUserError(err)
	}
	if rec.EmailVerified {
		return ErrEmailAlreadyVerified
	}

	code, err := e.issueLinkGrant(ctx, e.verificationGrants, grantTypeEmailVerification, rec.ID, rec.Email, req, e.config.Grants.EmailVerificationTTL)
	if err != nil {
		return err
	}

	link := linkURI(req.RedirectURI, code, "email_verification")
	subject := "Verify your email with " + e.config.Mail.ProductName
	body := "Hey, this is your single-use email verification link: " + link +
		"\nHere, you will verify your primary email. If you did not request an email verification, ignore this email."

	if err := e.mailer.SendMail(ctx, rec.Email, subject, body); err != nil {
		e.logger.ErrorContext(ctx, "send verification mail failed", "user_id", rec.ID, "err", err)
		if derr := e.verificationGrants.Delete(ctx, code); derr != nil {
			e.logger.WarnContext(ctx, "drop undelivered verification grant", "err", derr)
		}
		return ErrMailUnavailable
	}

	e.metricInc(MetricEmailVerificationRequested)
	return nil
}

// VerifyEmail spends a verification link and marks the primary email of its
// account as verified. The account's missing items are recomputed. A link
// mailed to an address the account no longer uses fails with
// ErrGrantNotFound.
func (e *Engine) VerifyEmail(ctx context.Context, link LinkCode, clientID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.verifyEmail(ctx, link, clientID); err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		return err
	}
	e.metricInc(MetricEmailVerificationSuccess)
	return nil
}

func (e *Engine) verifyEmail(ctx context.Context, link LinkCode, clientID string) error {
	code, err := codec.Decode(link.Code)
	if err != nil {
		return ErrInvalidCodeFormat
	}

	grant, err := e.verificationGrants.GetAndDeleteByKey(ctx, code)
	if err != nil {
		return mapGrantError(err)
	}
	if err := checkLinkGrant(grant, grantTypeEmailVerification, link, clientID); err != nil {
		return err
	}
	if _, err := e.linkOwner(ctx, grant); err != nil {
		return err
	}

	verified := true
	if _, err := e.users.UpdatePersistently(ctx, grant.UserID, userstore.Update{EmailVerified: &verified}); err != nil {
		return mapUserError(err)
	}

	e.logger.InfoContext(ctx, "email verified", "user_id", grant.UserID)
	return nil
}
