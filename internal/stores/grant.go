package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Namespace is the key prefix that separates grants by purpose.
type Namespace string

// Grant namespaces. A grant of one purpose can never be read through a store
// of another.
const (
	NamespaceAuth              Namespace = "auth.grant"
	NamespaceRecovery          Namespace = "recovery.grant"
	NamespaceEmailVerification Namespace = "emailVerification.grant"
)

// Hash fields of a grant record.
const (
	FieldGrantType   = "grant_type"
	FieldClientID    = "client_id"
	FieldRedirectURI = "redirect_uri"
	FieldState       = "state"
	FieldNonce       = "nonce"
	FieldUserID      = "user_id"
	FieldSessionRef  = "session_ref"
	FieldGeneration  = "generation"
	FieldMailedTo    = "mailed_to"
	FieldRotated     = "rotated"
)

// Errors reported by GrantStore. Transport failures wrap
// ErrGrantRedisUnavailable.
var (
	ErrGrantNotFound         = errors.New("grant not found")
	ErrAlreadyRotated        = errors.New("grant already rotated")
	ErrGrantCorrupt          = errors.New("grant record corrupt")
	ErrInvalidTTL            = errors.New("grant ttl must be positive")
	ErrGrantRedisUnavailable = errors.New("grant redis unavailable")
)

// Grant is one outstanding code. SessionRef names the access token a refresh
// grant was issued with; Generation is the owner's refresh generation at
// issuance and is only meaningful for refresh grants. MailedTo is the
// address a link grant was sent to.
type Grant struct {
	Code        string
	GrantType   string
	ClientID    string
	RedirectURI string
	State       string
	Nonce       string
	UserID      string
	SessionRef  string
	Generation  int64
	MailedTo    string
}

// GrantStore keeps single-use grant records as Redis hashes under
// <namespace>:<code>. Every record carries a TTL from the moment it exists.
type GrantStore struct {
	redis     redis.UniversalClient
	namespace Namespace
}

// NewGrantStore returns a store for one namespace. An empty namespace falls
// back to NamespaceAuth.
func NewGrantStore(redisClient redis.UniversalClient, namespace Namespace) *GrantStore {
	if namespace == "" {
		namespace = NamespaceAuth
	}
	return &GrantStore{
		redis:     redisClient,
		namespace: namespace,
	}
}

// Key returns the cache key of code in this store's namespace.
func (s *GrantStore) Key(code string) string {
	return string(s.namespace) + ":" + code
}

// Create writes every grant field and the expiry in one MULTI. A record
// whose expiry did not stick is removed before returning the error.
func (s *GrantStore) Create(ctx context.Context, code string, grant Grant, ttl time.Duration) (*Grant, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	if grant.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrGrantCorrupt)
	}

	key := s.Key(code)
	var (
		expireCmd *redis.BoolCmd
		readCmd   *redis.MapStringStringCmd
	)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeGrant(grant))
		expireCmd = pipe.PExpire(ctx, key, ttl)
		readCmd = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGrantRedisUnavailable, err)
	}
	if !expireCmd.Val() {
		if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrGrantRedisUnavailable, delErr)
		}
		return nil, fmt.Errorf("%w: expiry not applied", ErrGrantRedisUnavailable)
	}

	return decodeGrant(code, readCmd.Val())
}

// GetByKey reads a grant without consuming it. An empty hash is reported
// exactly like a missing key.
func (s *GrantStore) GetByKey(ctx context.Context, code string) (*Grant, error) {
	fields, err := s.redis.HGetAll(ctx, s.Key(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGrantRedisUnavailable, err)
	}
	return decodeGrant(code, fields)
}

// GetAndDeleteByKey reads and deletes a grant in one MULTI, so of any number
// of concurrent callers at most one observes the record.
func (s *GrantStore) GetAndDeleteByKey(ctx context.Context, code string) (*Grant, error) {
	key := s.Key(code)

	var readCmd *redis.MapStringStringCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		readCmd = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGrantRedisUnavailable, err)
	}

	return decodeGrant(code, readCmd.Val())
}

// Delete drops a grant. Deleting an absent grant is not an error.
func (s *GrantStore) Delete(ctx context.Context, code string) error {
	if err := s.redis.Del(ctx, s.Key(code)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrGrantRedisUnavailable, err)
	}
	return nil
}

func encodeGrant(g Grant) map[string]interface{} {
	fields := map[string]interface{}{
		FieldGrantType:   g.GrantType,
		FieldClientID:    g.ClientID,
		FieldRedirectURI: g.RedirectURI,
		FieldState:       g.State,
		FieldUserID:      g.UserID,
	}
	if g.Nonce != "" {
		fields[FieldNonce] = g.Nonce
	}
	if g.SessionRef != "" {
		fields[FieldSessionRef] = g.SessionRef
	}
	if g.MailedTo != "" {
		fields[FieldMailedTo] = g.MailedTo
	}
	if g.Generation > 0 {
		fields[FieldGeneration] = strconv.FormatInt(g.Generation, 10)
	}
	return fields
}

func decodeGrant(code string, fields map[string]string) (*Grant, error) {
	if len(fields) == 0 {
		return nil, ErrGrantNotFound
	}
	if _, rotated := fields[FieldRotated]; rotated {
		return nil, ErrAlreadyRotated
	}
	userID := fields[FieldUserID]
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrGrantCorrupt)
	}
	var generation int64
	if raw, ok := fields[FieldGeneration]; ok {
		g, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad generation %q", ErrGrantCorrupt, raw)
		}
		generation = g
	}

	return &Grant{
		Code:        code,
		GrantType:   fields[FieldGrantType],
		ClientID:    fields[FieldClientID],
		RedirectURI: fields[FieldRedirectURI],
		State:       fields[FieldState],
		Nonce:       fields[FieldNonce],
		UserID:      userID,
		SessionRef:  fields[FieldSessionRef],
		Generation:  generation,
		MailedTo:    fields[FieldMailedTo],
	}, nil
}
