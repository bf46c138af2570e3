package main

import (
	"net/http"
	"net/url"
	"strings"

	goGrant "github.com/MrEthical07/goGrant"
	grantmw "github.com/MrEthical07/goGrant/middleware"
	"github.com/go-chi/chi/v5"
)

// authRequestBody is the client binding carried by every request that
// issues a grant. The client id comes from the X-Client-ID header.
type authRequestBody struct {
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
	Nonce       string `json:"nonce,omitempty"`
}

func (b authRequestBody) authRequest(r *http.Request) goGrant.AuthRequest {
	return goGrant.AuthRequest{
		ClientID:    r.Header.Get(clientIDHeader),
		RedirectURI: b.RedirectURI,
		State:       b.State,
		Nonce:       b.Nonce,
	}
}

func (s *server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		goGrant.SignUpInput
		authRequestBody
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	code, err := s.engine.SignUp(r.Context(), body.SignUpInput, body.authRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

func (s *server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		goGrant.Credentials
		authRequestBody
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	code, err := s.engine.SignIn(r.Context(), body.Credentials, body.authRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

// tokenRequest accepts both the JSON and the form encoding of the token
// endpoint.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	State        string `json:"state"`
	RedirectURI  string `json:"redirect_uri"`
	RefreshToken string `json:"refresh_token"`
}

func readTokenRequest(r *http.Request) (tokenRequest, error) {
	var req tokenRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return req, goGrant.ErrInvalidInput
		}
		req.GrantType = r.PostForm.Get("grant_type")
		req.Code = r.PostForm.Get("code")
		req.State = r.PostForm.Get("state")
		req.RedirectURI = r.PostForm.Get("redirect_uri")
		req.RefreshToken = r.PostForm.Get("refresh_token")
		return req, nil
	}
	err := decodeJSON(r, &req)
	return req, err
}

func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	req, err := readTokenRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	clientID := r.Header.Get(clientIDHeader)

	var resp *goGrant.TokenResponse
	switch req.GrantType {
	case goGrant.GrantTypeAuthorizationCode:
		resp, err = s.engine.ValidateAuthCode(r.Context(), goGrant.CodeExchange{
			GrantType:   req.GrantType,
			Code:        req.Code,
			State:       req.State,
			RedirectURI: req.RedirectURI,
		}, clientID)
	case goGrant.GrantTypeRefreshToken:
		resp, err = s.engine.RefreshToken(r.Context(), req.RefreshToken, clientID)
	default:
		err = goGrant.ErrInvalidGrantType
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func (s *server) handleLogOut(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	if token == "" {
		s.writeError(w, r, goGrant.ErrInvalidAccessToken)
		return
	}
	if err := s.engine.LogOut(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLogOutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := grantmw.PrincipalFromContext(r.Context())
	n, err := s.engine.CloseAllSessions(r.Context(), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"closed": n})
}

type emailRequestBody struct {
	Email string `json:"email"`
	authRequestBody
}

func (s *server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var body emailRequestBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.RecoverAccount(r.Context(), body.Email, body.authRequest(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func linkFromQuery(q url.Values) goGrant.LinkCode {
	return goGrant.LinkCode{
		Code:        q.Get("code"),
		State:       q.Get("state"),
		RedirectURI: q.Get("redirect_uri"),
	}
}

func (s *server) handleGetResetter(w http.ResponseWriter, r *http.Request) {
	display, err := s.engine.GetPwdResetter(r.Context(), linkFromQuery(r.URL.Query()), r.Header.Get(clientIDHeader))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, display)
}

func (s *server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body goGrant.PasswordReset
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.ResetPassword(r.Context(), body, r.Header.Get(clientIDHeader)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleEmailVerification(w http.ResponseWriter, r *http.Request) {
	var body emailRequestBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.GetEmailVerification(r.Context(), body.Email, body.authRequest(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body goGrant.LinkCode
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.VerifyEmail(r.Context(), body, r.Header.Get(clientIDHeader)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProviderSignUp redirects the user agent to the provider. Browsers
// cannot set X-Client-ID on a navigation, so client_id may also come from
// the query.
func (s *server) handleProviderSignUp(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := r.Header.Get(clientIDHeader)
	if clientID == "" {
		clientID = q.Get("client_id")
	}
	auth, err := s.engine.ProviderSignUp(r.Context(), chi.URLParam(r, "provider"), goGrant.AuthRequest{
		ClientID:    clientID,
		RedirectURI: q.Get("redirect_uri"),
		State:       q.Get("state"),
		Nonce:       q.Get("nonce"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, auth.AuthorizationURI, http.StatusFound)
}

func (s *server) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.engine.ProviderCallback(r.Context(), chi.URLParam(r, "provider"), goGrant.ProviderCallback{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Scope: q.Get("scope"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	target, err := url.Parse(res.RedirectURI)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	values := target.Query()
	values.Set("code", res.Code)
	if res.State != "" {
		values.Set("state", res.State)
	}
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func principal(r *http.Request) *goGrant.Principal {
	p, _ := grantmw.PrincipalFromContext(r.Context())
	return p
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.GetUserValidation(r.Context(), principal(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body goGrant.ProfileUpdate
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.engine.UpdateProfile(r.Context(), principal(r).UserID, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) handleCompleteMissing(w http.ResponseWriter, r *http.Request) {
	var body goGrant.MissingData
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.engine.CompleteMissingData(r.Context(), principal(r).UserID, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.ChangePassword(r.Context(), principal(r).UserID, body.Current, body.New); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSetConnection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Connected bool `json:"connected"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.SetConnection(r.Context(), principal(r).Token, body.Connected); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteAccount(r.Context(), principal(r).UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
