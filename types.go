package goGrant

import "time"

// Grant types accepted at the token exchange.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenTypeBearer is the token_type of every issued token set.
const TokenTypeBearer = "bearer"

// AuthRequest carries the client binding of an authorization request. The
// issued grant remembers every field and the exchange must present the same
// client, state and redirect URI.
type AuthRequest struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
	Nonce       string `json:"nonce,omitempty"`
}

// SignUpInput is a local account registration.
type SignUpInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Credentials is a local sign-in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthorizationCode is returned by SignUp and SignIn.
type AuthorizationCode struct {
	Code  string `json:"authorization_code"`
	State string `json:"state,omitempty"`
}

// CodeExchange is the authorization_code grant presented at the token
// endpoint.
type CodeExchange struct {
	GrantType   string `json:"grant_type"`
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

// TokenSet is the issued token envelope.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// UserDisplay is the public view of an account.
type UserDisplay struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Picture   string `json:"picture,omitempty"`
}

// Warning lists what an account still needs before it is fully usable.
type Warning struct {
	Message      string   `json:"message"`
	MissingItems []string `json:"missing_items"`
}

// UserValidation is an account's display data and, when items are missing,
// its warning.
type UserValidation struct {
	User    UserDisplay `json:"user"`
	Warning *Warning    `json:"warning,omitempty"`
}

// TokenResponse is the result of a code exchange or refresh.
type TokenResponse struct {
	User    UserDisplay `json:"user"`
	Token   TokenSet    `json:"token"`
	Warning *Warning    `json:"warning,omitempty"`
}

// LinkCode is a recovery or email-verification code as it arrives from a
// mailed link, still URL-encoded, together with the client binding.
type LinkCode struct {
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

// PasswordReset completes account recovery.
type PasswordReset struct {
	LinkCode
	Password string `json:"password"`
}

// ProviderAuthorization is the provider authorization URI to send the user
// agent to.
type ProviderAuthorization struct {
	AuthorizationURI string `json:"authorization_uri"`
}

// ProviderCallback is the query of a provider redirect back to the server.
type ProviderCallback struct {
	Code  string `json:"code"`
	State string `json:"state"`
	Scope string `json:"scope"`
}

// ProviderResult is the local authorization code issued after a successful
// provider exchange, to be delivered to RedirectURI.
type ProviderResult struct {
	RedirectURI string `json:"redirect_uri"`
	Code        string `json:"authorization_code"`
	State       string `json:"state,omitempty"`
	Created     bool   `json:"created"`
}

// MissingData is submitted by the completion flow. Nil fields are left as
// they are.
type MissingData struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// ProfileUpdate edits a complete account. Nil fields are left as they are.
type ProfileUpdate struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
	Picture   *string `json:"picture,omitempty"`
}

// Principal is the verified holder of an access token.
type Principal struct {
	UserID    string
	Email     string
	Name      string
	Token     string
	ExpiresAt time.Time
}
