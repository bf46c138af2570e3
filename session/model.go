package session

// Session is the cache record behind one live access token. The record
// lives at session:<Token>; Connection is true while the holder keeps a live
// client connection. RefreshRef names the refresh token issued alongside
// the access token, so closing the session can revoke it.
type Session struct {
	Token          string
	UserID         string
	Connection     bool
	RefreshRef     string
	WorkspaceViews []string
}

// RotateRequest describes one refresh rotation. GrantKey is the full cache
// key of the refresh grant being spent.
type RotateRequest struct {
	GrantKey      string
	OldToken      string
	NewToken      string
	NewRefreshRef string
	UserID        string
}
