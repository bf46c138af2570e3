package goGrant

import "errors"

var (
	// ErrInvalidCodeFormat is returned before any lookup when a grant code is
	// not HC-<objectid>-<9 digits>.
	ErrInvalidCodeFormat = errors.New("invalid code format")
	// ErrInvalidGrantType is returned when the requested or stored grant_type
	// does not match the operation.
	ErrInvalidGrantType = errors.New("invalid grant type")
	// ErrGrantNotFound is returned for absent, expired or already consumed grants.
	ErrGrantNotFound = errors.New("grant not found")
	// ErrGrantCorrupt is returned when a stored grant lacks required fields.
	ErrGrantCorrupt = errors.New("grant record corrupt")
	// ErrClientMismatch is returned when a grant was issued to another client.
	ErrClientMismatch = errors.New("client mismatch")
	// ErrStateMismatch is returned when the presented state differs from the grant's.
	ErrStateMismatch = errors.New("state mismatch")
	// ErrRedirectMismatch is returned when the presented redirect_uri differs
	// from the grant's.
	ErrRedirectMismatch = errors.New("redirect uri mismatch")
	// ErrNonceMismatch is returned when a provider id_token nonce differs from
	// the grant's.
	ErrNonceMismatch = errors.New("nonce mismatch")
	// ErrInvalidScope is returned when a provider callback reports another scope.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrSessionAlreadyRotated is returned when a refresh token was already spent.
	ErrSessionAlreadyRotated = errors.New("session already rotated")
	// ErrUserNotRegistered is returned when no account backs an email or id.
	ErrUserNotRegistered = errors.New("user not registered")
	// ErrNoLocalCredential is returned for password operations on accounts
	// that only sign in through a provider.
	ErrNoLocalCredential = errors.New("account has no local credential")
	// ErrInvalidPassword is returned when a password does not verify.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrEmailAlreadyInUse is returned when the primary email belongs to
	// another account.
	ErrEmailAlreadyInUse = errors.New("email already in use")
	// ErrEmailAlreadyVerified is returned when verification is requested for a
	// verified address.
	ErrEmailAlreadyVerified = errors.New("email already verified")
	// ErrIncompleteAccountEditNotAllowed is returned for profile edits on an
	// account that still has required items missing.
	ErrIncompleteAccountEditNotAllowed = errors.New("incomplete account edit not allowed")
	// ErrAccountComplete is returned when missing data is submitted for an
	// account that has nothing left to complete.
	ErrAccountComplete = errors.New("account already complete")
	// ErrLoginRateLimited is returned once an email or client IP has spent
	// its sign-in budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRequestRateLimited is returned when recovery or verification mail is
	// requested too often for one address.
	ErrRequestRateLimited = errors.New("request rate limited")
	// ErrInvalidAccessToken is returned when an access token fails signature
	// checks or has no live session.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrInvalidInput is returned when required request fields are absent.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderUnknown is returned for provider names that are not configured.
	ErrProviderUnknown = errors.New("unknown provider")
	// ErrProviderUnavailable is returned when a provider authorization
	// endpoint fails its liveness check.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderExchangeFailed is returned when the provider rejects a code
	// or returns an unusable id_token.
	ErrProviderExchangeFailed = errors.New("provider exchange failed")
	// ErrEngineNotReady is returned by methods called on a nil or partially
	// built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrRedisUnavailable wraps cache failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUserStoreUnavailable wraps durable store failures.
	ErrUserStoreUnavailable = errors.New("user store unavailable")
	// ErrMailUnavailable wraps mail delivery failures.
	ErrMailUnavailable = errors.New("mail unavailable")
)
