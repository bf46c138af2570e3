package usercache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goGrant/userstore"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrUserNotFound is returned when neither the mirror nor the store knows the id.
	ErrUserNotFound = errors.New("user not found")
	// ErrRedisUnavailable wraps cache failures.
	ErrRedisUnavailable = errors.New("user cache redis unavailable")
	// ErrStoreUnavailable wraps durable store failures.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrPendingAccount is returned by write-through updates on an account
	// that only exists in the mirror.
	ErrPendingAccount = errors.New("account is not persisted yet")
	// ErrAccountComplete is returned when completion is requested for a
	// persisted account.
	ErrAccountComplete = errors.New("account is already complete")
)

const (
	fieldFirstName             = "firstName"
	fieldLastName              = "lastName"
	fieldEmail                 = "email"
	fieldPicture               = "picture"
	fieldEmailVerified         = "emailVerified"
	fieldWarning               = "warningMessage"
	fieldIncomplete            = "isIncomplete"
	fieldHashedPassword        = "hashedPassword"
	fieldSalt                  = "salt"
	fieldProvider              = "openID.provider"
	fieldProviderEmail         = "openID.email"
	fieldProviderEmailVerified = "openID.emailVerified"
	fieldSubject               = "openID.sub"
)

// Key returns the mirror hash key for a user.
func Key(id string) string { return "user:" + id }

// OrganizationsKey returns the organizations set key for a user.
func OrganizationsKey(id string) string { return "user:" + id + ":organizations" }

// MissingItemsKey returns the missing items set key for a user.
func MissingItemsKey(id string) string { return "user:" + id + ":missing.items" }

// Entry is the mirrored view of one account.
type Entry struct {
	ID             string
	FirstName      string
	LastName       string
	Email          string
	Picture        string
	EmailVerified  bool
	Organizations  []string
	WarningMessage string
	MissingItems   []string
	Incomplete     bool

	// Pending holds the full record of an incomplete account, credential
	// material included. It is nil for persisted accounts.
	Pending *userstore.Record
}

// Cache is a read-through mirror of the durable user store. Durable fields
// are always written to the store first.
type Cache struct {
	redis      redis.UniversalClient
	store      userstore.Store
	ttl        time.Duration
	pendingTTL time.Duration
}

// New creates a Cache. ttl is the sliding lifetime of persisted mirrors and
// pendingTTL the lifetime of accounts that still need completion.
func New(rdb redis.UniversalClient, store userstore.Store, ttl, pendingTTL time.Duration) *Cache {
	return &Cache{
		redis:      rdb,
		store:      store,
		ttl:        ttl,
		pendingTTL: pendingTTL,
	}
}

// Store returns the durable store behind the cache.
func (c *Cache) Store() userstore.Store {
	return c.store
}

// GetByID returns the mirror of id, refreshing its TTL. On a miss it loads
// the durable record and repopulates the mirror before returning.
func (c *Cache) GetByID(ctx context.Context, id string) (*Entry, error) {
	entry, err := c.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		if err := c.touch(ctx, entry); err != nil {
			return nil, err
		}
		return entry, nil
	}

	rec, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return c.Populate(ctx, rec)
}

// GetRecordByField reads the durable store directly.
func (c *Cache) GetRecordByField(ctx context.Context, field userstore.Field, value string) (*userstore.Record, error) {
	rec, err := c.store.GetOneByField(ctx, field, value)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rec, nil
}

// GetRecord reads the durable record of id.
func (c *Cache) GetRecord(ctx context.Context, id string) (*userstore.Record, error) {
	rec, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rec, nil
}

// UpdatePersistently writes update through to the durable store and then
// rewrites the mirror from the stored record.
func (c *Cache) UpdatePersistently(ctx context.Context, id string, update userstore.Update) (*Entry, error) {
	rec, err := c.store.UpdateByID(ctx, id, update)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			if pending, _ := c.read(ctx, id); pending != nil && pending.Incomplete {
				return nil, ErrPendingAccount
			}
		}
		return nil, mapStoreError(err)
	}
	return c.Populate(ctx, rec)
}

// Populate rewrites the mirror of a persisted record.
func (c *Cache) Populate(ctx context.Context, rec *userstore.Record) (*Entry, error) {
	return c.write(ctx, rec, ComputeMissing(rec, false), false)
}

// PutPending stores an incomplete account in the mirror only.
func (c *Cache) PutPending(ctx context.Context, rec *userstore.Record, missing []string) (*Entry, error) {
	return c.write(ctx, rec, missing, true)
}

// Delete drops the mirror of id. The durable record is untouched.
func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.redis.Del(ctx, Key(id), OrganizationsKey(id), MissingItemsKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (c *Cache) read(ctx context.Context, id string) (*Entry, error) {
	var (
		fieldsCmd  *redis.MapStringStringCmd
		orgsCmd    *redis.StringSliceCmd
		missingCmd *redis.StringSliceCmd
	)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fieldsCmd = pipe.HGetAll(ctx, Key(id))
		orgsCmd = pipe.SMembers(ctx, OrganizationsKey(id))
		missingCmd = pipe.SMembers(ctx, MissingItemsKey(id))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeEntry(id, fields, orgsCmd.Val(), missingCmd.Val()), nil
}

func (c *Cache) touch(ctx context.Context, entry *Entry) error {
	ttl := c.lifetime(entry.Incomplete)
	_, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.PExpire(ctx, Key(entry.ID), ttl)
		pipe.PExpire(ctx, OrganizationsKey(entry.ID), ttl)
		pipe.PExpire(ctx, MissingItemsKey(entry.ID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (c *Cache) write(ctx context.Context, rec *userstore.Record, missing []string, incomplete bool) (*Entry, error) {
	missing = sortItems(missing)
	warning := WarningMessage(missing)
	fields := encodeFields(rec, warning, incomplete)
	ttl := c.lifetime(incomplete)
	key := Key(rec.ID)

	var expireCmd *redis.BoolCmd
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key, OrganizationsKey(rec.ID), MissingItemsKey(rec.ID))
		pipe.HSet(ctx, key, fields)
		expireCmd = pipe.PExpire(ctx, key, ttl)
		if len(rec.Organizations) > 0 {
			pipe.SAdd(ctx, OrganizationsKey(rec.ID), toAny(rec.Organizations)...)
			pipe.PExpire(ctx, OrganizationsKey(rec.ID), ttl)
		}
		if len(missing) > 0 {
			pipe.SAdd(ctx, MissingItemsKey(rec.ID), toAny(missing)...)
			pipe.PExpire(ctx, MissingItemsKey(rec.ID), ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !expireCmd.Val() {
		_ = c.Delete(ctx, rec.ID)
		return nil, fmt.Errorf("%w: expire not applied", ErrRedisUnavailable)
	}

	entry := &Entry{
		ID:             rec.ID,
		FirstName:      rec.FirstName,
		LastName:       rec.LastName,
		Email:          rec.Email,
		Picture:        rec.Picture,
		EmailVerified:  rec.EmailVerified,
		Organizations:  append([]string(nil), rec.Organizations...),
		WarningMessage: warning,
		MissingItems:   missing,
		Incomplete:     incomplete,
	}
	if incomplete {
		entry.Pending = rec.Clone()
	}
	return entry, nil
}

func (c *Cache) lifetime(incomplete bool) time.Duration {
	if incomplete && c.pendingTTL > 0 {
		return c.pendingTTL
	}
	return c.ttl
}

func encodeFields(rec *userstore.Record, warning string, incomplete bool) map[string]any {
	fields := map[string]any{
		fieldFirstName:     rec.FirstName,
		fieldLastName:      rec.LastName,
		fieldEmail:         rec.Email,
		fieldPicture:       rec.Picture,
		fieldEmailVerified: strconv.FormatBool(rec.EmailVerified),
	}
	if warning != "" {
		fields[fieldWarning] = warning
	}
	if !incomplete {
		return fields
	}

	fields[fieldIncomplete] = "true"
	if rec.HashedPassword != "" {
		fields[fieldHashedPassword] = rec.HashedPassword
		fields[fieldSalt] = rec.Salt
	}
	if rec.OpenID != nil {
		fields[fieldProvider] = rec.OpenID.Provider
		fields[fieldProviderEmail] = rec.OpenID.Email
		fields[fieldProviderEmailVerified] = strconv.FormatBool(rec.OpenID.EmailVerified)
		fields[fieldSubject] = rec.OpenID.Subject
	}
	return fields
}

func decodeEntry(id string, fields map[string]string, orgs, missing []string) *Entry {
	entry := &Entry{
		ID:             id,
		FirstName:      fields[fieldFirstName],
		LastName:       fields[fieldLastName],
		Email:          fields[fieldEmail],
		Picture:        fields[fieldPicture],
		EmailVerified:  fields[fieldEmailVerified] == "true",
		Organizations:  orgs,
		WarningMessage: fields[fieldWarning],
		MissingItems:   sortItems(missing),
		Incomplete:     fields[fieldIncomplete] == "true",
	}
	if !entry.Incomplete {
		return entry
	}

	rec := &userstore.Record{
		ID:             id,
		FirstName:      entry.FirstName,
		LastName:       entry.LastName,
		Email:          entry.Email,
		Picture:        entry.Picture,
		EmailVerified:  entry.EmailVerified,
		HashedPassword: fields[fieldHashedPassword],
		Salt:           fields[fieldSalt],
		Organizations:  append([]string(nil), orgs...),
	}
	if sub := fields[fieldSubject]; sub != "" {
		rec.OpenID = &userstore.ThirdPartyIdentity{
			Provider:      fields[fieldProvider],
			Email:         fields[fieldProviderEmail],
			EmailVerified: fields[fieldProviderEmailVerified] == "true",
			Subject:       sub,
		}
	}
	entry.Pending = rec
	return entry
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, userstore.ErrDuplicateEmail),
		errors.Is(err, userstore.ErrDuplicateIdentity),
		errors.Is(err, userstore.ErrDuplicateID),
		errors.Is(err, userstore.ErrUnsupportedField),
		errors.Is(err, userstore.ErrInvalidRecord):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
