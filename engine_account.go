package goGrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goGrant/password"
	"github.com/MrEthical07/goGrant/usercache"
	"github.com/MrEthical07/goGrant/userstore"
)

// GetDisplayData returns the public profile of userID.
func (e *Engine) GetDisplayData(ctx context.Context, userID string) (*UserDisplay, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	entry, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapUserError(err)
	}
	display := displayOf(entry)
	return &display, nil
}

// ChangePassword replaces the password of userID after verifying current.
//
// The new password is hashed with a fresh salt and written through to the
// durable store. Every live session of the account is closed afterwards.
// ChangePassword returns ErrNoLocalCredential for accounts that only sign in
// through a provider.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" || current == "" || next == "" {
		return ErrInvalidInput
	}

	rec, err := e.users.GetRecord(ctx, userID)
	if err != nil {
		return mapUserError(err)
	}
	if !rec.HasLocalCredential() {
		return ErrNoLocalCredential
	}
	ok, err := e.passwordHash.Verify(rec.HashedPassword, current)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		return fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	if !ok {
		return ErrInvalidPassword
	}

	digest, salt, err := e.hashPassword(next)
	if err != nil {
		return err
	}
	if _, err := e.users.UpdatePersistently(ctx, userID, userstore.Update{
		HashedPassword: &digest,
		Salt:           &salt,
	}); err != nil {
		return mapUserError(err)
	}

	if _, err := e.CloseAllSessions(ctx, userID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.logger.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// CompleteMissingData supplies fields to an account that is still held in
// the user mirror. Once no required item is missing the account is written
// to the durable store for the first time. The returned validation reflects
// the recomputed missing items.
func (e *Engine) CompleteMissingData(ctx context.Context, userID string, in MissingData) (*UserValidation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	patch := usercache.Patch{
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		patch.Email = &email
	}
	if in.Password != nil && *in.Password != "" {
		digest, salt, err := e.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		patch.HashedPassword = &digest
		patch.Salt = &salt
	}

	outcome, err := e.completeness.Complete(ctx, userID, patch)
	if err != nil {
		return nil, mapUserError(err)
	}
	if outcome.EmailConflict() {
		return nil, ErrEmailAlreadyInUse
	}
	if outcome.Persisted {
		e.metricInc(MetricAccountCompleted)
		e.logger.InfoContext(ctx, "account completed", "user_id", userID)
	}

	_, validation, err := e.userValidation(ctx, userID)
	return validation, err
}

// UpdateProfile edits the profile of a complete account. Changing the email
// clears its verified flag.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*UserValidation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	entry, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapUserError(err)
	}
	if entry.Incomplete {
		return nil, ErrIncompleteAccountEditNotAllowed
	}

	var update userstore.Update
	if in.FirstName != nil {
		v := strings.TrimSpace(*in.FirstName)
		if v == "" {
			return nil, ErrInvalidInput
		}
		update.FirstName = &v
	}
	if in.LastName != nil {
		v := strings.TrimSpace(*in.LastName)
		if v == "" {
			return nil, ErrInvalidInput
		}
		update.LastName = &v
	}
	if in.Picture != nil {
		v := strings.TrimSpace(*in.Picture)
		update.Picture = &v
	}
	if in.Email != nil {
		v := normalizeEmail(*in.Email)
		if v == "" {
			return nil, ErrInvalidInput
		}
		if v != entry.Email {
			unverified := false
			update.Email = &v
			update.EmailVerified = &unverified
		}
	}
	if update.IsEmpty() {
		_, validation, err := e.userValidation(ctx, userID)
		return validation, err
	}

	if _, err := e.users.UpdatePersistently(ctx, userID, update); err != nil {
		return nil, mapUserError(err)
	}
	_, validation, err := e.userValidation(ctx, userID)
	return validation, err
}
