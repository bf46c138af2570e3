package session

const (
	sessionPrefix  = "session:"
	userPrefix     = "user:"
	viewsSuffix    = ":workspaceViews"
	sessionsSuffix = ":sessions"
	genSuffix      = ":refresh.generation"
)

// Key returns the cache key of the session behind an access token.
func Key(token string) string {
	return sessionPrefix + token
}

// ViewsKey returns the workspace-views set of a session.
func ViewsKey(token string) string {
	return sessionPrefix + token + viewsSuffix
}

// UserKey returns the user mirror key whose presence gates registration.
func UserKey(userID string) string {
	return userPrefix + userID
}

// SessionsKey returns the set enumerating a user's live session keys.
func SessionsKey(userID string) string {
	return userPrefix + userID + sessionsSuffix
}

// GenerationKey returns the counter bumped each time every session of a
// user is closed. Refresh grants carry the value current at issuance.
func GenerationKey(userID string) string {
	return userPrefix + userID + genSuffix
}
