package usercache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrEthical07/goGrant/userstore"
)

// Outcome reports where an account ended up after a completeness decision.
type Outcome struct {
	Entry     *Entry
	Persisted bool
}

// EmailConflict reports whether the account was rejected for an email owned
// by another account.
func (o *Outcome) EmailConflict() bool {
	return o != nil && o.Entry != nil && slices.Contains(o.Entry.MissingItems, ItemEmailUniqueness)
}

// Patch carries the fields supplied by the missing-data completion flow.
type Patch struct {
	FirstName      *string
	LastName       *string
	Email          *string
	HashedPassword *string
	Salt           *string
}

// Completeness decides whether an account is written durably or held in the
// mirror until its required fields are supplied.
type Completeness struct {
	cache *Cache
}

// NewCompleteness returns a completeness engine over cache.
func NewCompleteness(cache *Cache) *Completeness {
	return &Completeness{cache: cache}
}

// CreateAccount computes the missing items of rec and applies the write
// policy. Accounts missing only email verification are persisted with
// EmailVerified false. Accounts with a required gap live in the mirror only.
func (c *Completeness) CreateAccount(ctx context.Context, rec *userstore.Record) (*Outcome, error) {
	rec = rec.Clone()
	taken, err := c.emailTaken(ctx, rec.Email, rec.ID)
	if err != nil {
		return nil, err
	}
	return c.settle(ctx, rec, ComputeMissing(rec, taken))
}

// Complete applies patch to a pending account and promotes it to the durable
// store once no required item is missing.
func (c *Completeness) Complete(ctx context.Context, id string, patch Patch) (*Outcome, error) {
	entry, err := c.cache.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entry.Incomplete || entry.Pending == nil {
		return nil, ErrAccountComplete
	}

	rec := entry.Pending.Clone()
	if patch.FirstName != nil {
		rec.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		rec.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.Email != nil && *patch.Email != rec.Email {
		rec.Email = *patch.Email
		rec.EmailVerified = rec.OpenID != nil && rec.OpenID.EmailVerified && rec.OpenID.Email == rec.Email
	}
	if patch.HashedPassword != nil && patch.Salt != nil {
		rec.HashedPassword = *patch.HashedPassword
		rec.Salt = *patch.Salt
	}

	taken, err := c.emailTaken(ctx, rec.Email, rec.ID)
	if err != nil {
		return nil, err
	}
	return c.settle(ctx, rec, ComputeMissing(rec, taken))
}

func (c *Completeness) settle(ctx context.Context, rec *userstore.Record, missing []string) (*Outcome, error) {
	if RequiresCompletion(missing) {
		entry, err := c.cache.PutPending(ctx, rec, missing)
		if err != nil {
			return nil, err
		}
		return &Outcome{Entry: entry}, nil
	}

	created, err := c.cache.store.Create(ctx, rec)
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			// Lost a race for the email after the uniqueness check.
			entry, perr := c.cache.PutPending(ctx, rec, ComputeMissing(rec, true))
			if perr != nil {
				return nil, perr
			}
			return &Outcome{Entry: entry}, nil
		}
		return nil, mapStoreError(err)
	}

	entry, err := c.cache.write(ctx, created, missing, false)
	if err != nil {
		return nil, err
	}
	return &Outcome{Entry: entry, Persisted: true}, nil
}

func (c *Completeness) emailTaken(ctx context.Context, email, selfID string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}
	owner, err := c.cache.store.GetOneByField(ctx, userstore.FieldEmail, email)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return owner.ID != selfID, nil
}
