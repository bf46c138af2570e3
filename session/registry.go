package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every transport or server failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no record backs an access token.
var ErrSessionNotFound = errors.New("session not found")

// ErrAlreadyRotated is returned when a refresh rotation lost the race or the
// refresh grant was spent before.
var ErrAlreadyRotated = errors.New("session already rotated")

// ErrGrantGone is returned by Rotate when the refresh grant no longer exists
// or was revoked by closing every session of its owner.
var ErrGrantGone = errors.New("refresh grant gone")

// ErrUserNotRegistered is returned when a session key is registered for a
// user without a user:<id> cache entry.
var ErrUserNotRegistered = errors.New("user not registered")

const (
	fieldUserID     = "user_id"
	fieldConnection = "connection"
	fieldRefreshRef = "refresh_ref"
)

const (
	rotateStatusGrantGone int64 = 0
	rotateStatusRotated   int64 = 1
	rotateStatusOK        int64 = 2
)

const rotateSessionScript = `
local grant_key = KEYS[1]
local old_key = KEYS[2]
local new_key = KEYS[3]
local old_views = KEYS[4]
local new_views = KEYS[5]
local generation_key = KEYS[6]
local user_id = ARGV[1]
local ttl = ARGV[2]
local refresh_ref = ARGV[3]

if redis.call("EXISTS", grant_key) == 0 then
  return 0
end
if redis.call("HEXISTS", grant_key, "rotated") == 1 then
  return 1
end

local issued = redis.call("HGET", grant_key, "generation")
if not issued then
  issued = "0"
end
local current = redis.call("GET", generation_key)
if not current then
  current = "0"
end
if issued ~= current then
  redis.call("DEL", grant_key)
  return 0
end

if redis.call("EXISTS", old_key) == 1 then
  redis.call("RENAME", old_key, new_key)
  if redis.call("EXISTS", old_views) == 1 then
    redis.call("RENAME", old_views, new_views)
    redis.call("PEXPIRE", new_views, ttl)
  end
else
  redis.call("HSET", new_key, "user_id", user_id, "connection", "false")
end
redis.call("HSET", new_key, "refresh_ref", refresh_ref)
redis.call("PEXPIRE", new_key, ttl)
redis.call("HSET", grant_key, "rotated", "1")
return 2
`

var rotateSessionLua = redis.NewScript(rotateSessionScript)

const generationScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return tonumber(current)
`

var generationLua = redis.NewScript(generationScript)

const registerSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`

var registerSessionLua = redis.NewScript(registerSessionScript)

const setConnectionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "connection", ARGV[1])
return 1
`

var setConnectionLua = redis.NewScript(setConnectionScript)

// Registry is the Redis-backed session registry. It owns session:<token>
// records, their workspace-view sets and the per-user user:<id>:sessions
// index.
//
//	Docs: docs/session.md
type Registry struct {
	redis redis.UniversalClient
}

// NewRegistry creates a session [Registry] backed by the given Redis client.
func NewRegistry(redisClient redis.UniversalClient) *Registry {
	return &Registry{redis: redisClient}
}

// Create writes a session and its optional workspace views with ttl.
//
//	Performance: 1 MULTI (HSET + PEXPIRE, plus SADD + PEXPIRE with views).
func (r *Registry) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || sess.Token == "" || sess.UserID == "" {
		return errors.New("session requires token and user id")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	key := Key(sess.Token)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldUserID, sess.UserID, fieldConnection, strconv.FormatBool(sess.Connection))
		if sess.RefreshRef != "" {
			pipe.HSet(ctx, key, fieldRefreshRef, sess.RefreshRef)
		}
		pipe.PExpire(ctx, key, ttl)
		if len(sess.WorkspaceViews) > 0 {
			views := make([]interface{}, len(sess.WorkspaceViews))
			for i, v := range sess.WorkspaceViews {
				views[i] = v
			}
			pipe.SAdd(ctx, ViewsKey(sess.Token), views...)
			pipe.PExpire(ctx, ViewsKey(sess.Token), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get reads the session behind token.
//
//	Performance: 1 MULTI (HGETALL + SMEMBERS).
func (r *Registry) Get(ctx context.Context, token string) (*Session, error) {
	var (
		fieldsCmd *redis.MapStringStringCmd
		viewsCmd  *redis.StringSliceCmd
	)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fieldsCmd = pipe.HGetAll(ctx, Key(token))
		viewsCmd = pipe.SMembers(ctx, ViewsKey(token))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 || fields[fieldUserID] == "" {
		return nil, ErrSessionNotFound
	}
	connection, _ := strconv.ParseBool(fields[fieldConnection])

	return &Session{
		Token:          token,
		UserID:         fields[fieldUserID],
		Connection:     connection,
		RefreshRef:     fields[fieldRefreshRef],
		WorkspaceViews: viewsCmd.Val(),
	}, nil
}

// SetConnection flips the connection flag of a live session.
func (r *Registry) SetConnection(ctx context.Context, token string, connected bool) error {
	res, err := setConnectionLua.Run(ctx, r.redis, []string{Key(token)}, strconv.FormatBool(connected)).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session and its workspace views. It reports the owner
// of the removed record; existed is false when nothing was there.
//
//	Performance: 1 MULTI (HGET + DEL x2).
func (r *Registry) Delete(ctx context.Context, token string) (userID string, existed bool, err error) {
	var (
		ownerCmd *redis.StringCmd
		delCmd   *redis.IntCmd
	)
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ownerCmd = pipe.HGet(ctx, Key(token), fieldUserID)
		delCmd = pipe.Del(ctx, Key(token))
		pipe.Del(ctx, ViewsKey(token))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return ownerCmd.Val(), delCmd.Val() > 0, nil
}

// DeleteAllForUser removes every session listed in user:<id>:sessions and
// the index itself, and bumps the user's refresh generation so refresh
// grants issued before the call can no longer rotate. The generation key
// lives for refreshTTL. It returns the number of live records removed.
//
// ATOMICITY NOTE: the index is read before the MULTI that deletes, so a
// session registered in between survives this call and expires on its own
// TTL. Its refresh grant is still revoked by the generation bump.
func (r *Registry) DeleteAllForUser(ctx context.Context, userID string, refreshTTL time.Duration) (int, error) {
	if refreshTTL <= 0 {
		return 0, errors.New("refresh ttl must be positive")
	}
	indexKey := SessionsKey(userID)

	members, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	delCmds := make([]*redis.IntCmd, 0, len(members))
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sessionKey := range members {
			delCmds = append(delCmds, pipe.Del(ctx, sessionKey))
			pipe.Del(ctx, sessionKey+viewsSuffix)
		}
		pipe.Del(ctx, indexKey)
		pipe.Incr(ctx, GenerationKey(userID))
		pipe.PExpire(ctx, GenerationKey(userID), refreshTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	removed := 0
	for _, cmd := range delCmds {
		removed += int(cmd.Val())
	}
	return removed, nil
}

// RefreshGeneration returns the generation new refresh grants of userID
// must carry. A live generation key has its lifetime extended to refreshTTL
// so it always outlives the grants stamped with it.
func (r *Registry) RefreshGeneration(ctx context.Context, userID string, refreshTTL time.Duration) (int64, error) {
	gen, err := generationLua.Run(ctx, r.redis, []string{GenerationKey(userID)}, refreshTTL.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return gen, nil
}

// Rotate spends a refresh grant and moves the session it was issued with to
// the new access token in one script. The grant keeps its key with a
// rotated marker until it expires, so a replay of the same refresh token
// fails with ErrAlreadyRotated. A grant stamped with an older refresh
// generation than its owner's is deleted and reported as ErrGrantGone. A
// session that merely expired is recreated for the new token from the grant
// owner.
//
//	Performance: 1 EVALSHA.
func (r *Registry) Rotate(ctx context.Context, req RotateRequest, ttl time.Duration) error {
	if req.GrantKey == "" || req.NewToken == "" || req.UserID == "" || req.NewRefreshRef == "" {
		return errors.New("rotate requires grant key, new token, refresh ref and user id")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	res, err := rotateSessionLua.Run(
		ctx,
		r.redis,
		[]string{
			req.GrantKey,
			Key(req.OldToken),
			Key(req.NewToken),
			ViewsKey(req.OldToken),
			ViewsKey(req.NewToken),
			GenerationKey(req.UserID),
		},
		req.UserID,
		ttl.Milliseconds(),
		req.NewRefreshRef,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch res {
	case rotateStatusOK:
		return nil
	case rotateStatusRotated:
		return ErrAlreadyRotated
	case rotateStatusGrantGone:
		return ErrGrantGone
	default:
		return fmt.Errorf("%w: unexpected rotate status %d", ErrRedisUnavailable, res)
	}
}

// RegisterSessionKey adds a session key to user:<id>:sessions. It fails with
// ErrUserNotRegistered when user:<id> is absent.
func (r *Registry) RegisterSessionKey(ctx context.Context, userID, sessionKey string) error {
	res, err := registerSessionLua.Run(ctx, r.redis, []string{UserKey(userID), SessionsKey(userID)}, sessionKey).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res == 0 {
		return ErrUserNotRegistered
	}
	return nil
}

// UnregisterSessionKey removes one session key from the user's index.
func (r *Registry) UnregisterSessionKey(ctx context.Context, userID, sessionKey string) error {
	if err := r.redis.SRem(ctx, SessionsKey(userID), sessionKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// UnregisterAllSessionKeys drops the user's index.
func (r *Registry) UnregisterAllSessionKeys(ctx context.Context, userID string) error {
	if err := r.redis.Del(ctx, SessionsKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// UpdateSessionKey swaps oldKey for newKey in the user's index.
func (r *Registry) UpdateSessionKey(ctx context.Context, userID, oldKey, newKey string) error {
	indexKey := SessionsKey(userID)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, indexKey, oldKey)
		pipe.SAdd(ctx, indexKey, newKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
