package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket is one fixed-window budget: at most Max hits per Window for each
// identifier.
type Bucket struct {
	Name   string
	Max    int
	Window time.Duration
}

// Enabled reports whether the bucket enforces anything.
func (b Bucket) Enabled() bool {
	return b.Max > 0 && b.Window > 0
}

func (b Bucket) key(id string) string {
	return "rl:" + b.Name + ":" + strings.ToLower(id)
}

// Config holds the budgets used by the grant flows.
type Config struct {
	EnableIPThrottle bool
	SignIn           Bucket
	Recovery         Bucket
	Verification     Bucket
}

// Limiter enforces fixed-window budgets with Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin fails with ErrRateLimited when the email, or the client IP when
// IP throttling is on, has used up its failed sign-in budget.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if err := l.Check(ctx, l.config.SignIn, email); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.Check(ctx, l.ipBucket(), ip)
	}
	return nil
}

// IncrementLogin records a failed sign-in.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	if err := l.Hit(ctx, l.config.SignIn, email); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.Hit(ctx, l.ipBucket(), ip)
	}
	return nil
}

// ResetLogin clears the failed sign-in counters after a successful sign-in.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	keys := []string{l.config.SignIn.key(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.ipBucket().key(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// HitRecovery counts one recovery mail request for email.
func (l *Limiter) HitRecovery(ctx context.Context, email string) error {
	return l.Hit(ctx, l.config.Recovery, email)
}

// HitVerification counts one verification mail request for email.
func (l *Limiter) HitVerification(ctx context.Context, email string) error {
	return l.Hit(ctx, l.config.Verification, email)
}

// Check fails with ErrRateLimited once id has spent the bucket's budget. It
// does not count a hit.
func (l *Limiter) Check(ctx context.Context, b Bucket, id string) error {
	if !b.Enabled() || id == "" {
		return nil
	}
	count, err := l.redis.Get(ctx, b.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(b.Max) {
		return ErrRateLimited
	}
	return nil
}

// Hit counts one use of the bucket by id and fails with ErrRateLimited when
// the count goes past the budget.
func (l *Limiter) Hit(ctx context.Context, b Bucket, id string) error {
	if !b.Enabled() || id == "" {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, b.key(id), b.Window)
	if err != nil {
		return err
	}
	if count > int64(b.Max) {
		return ErrRateLimited
	}
	return nil
}

// Attempts returns the current counter of id in b. Missing keys read as zero.
func (l *Limiter) Attempts(ctx context.Context, b Bucket, id string) (int, error) {
	count, err := l.redis.Get(ctx, b.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// SignInBucket returns the configured sign-in budget.
func (l *Limiter) SignInBucket() Bucket {
	return l.config.SignIn
}

func (l *Limiter) ipBucket() Bucket {
	b := l.config.SignIn
	b.Name += ".ip"
	return b
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
