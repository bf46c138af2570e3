package rate

import "errors"

var (
	// ErrRateLimited is returned once a bucket's budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
