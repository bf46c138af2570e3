package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	goGrant "github.com/MrEthical07/goGrant"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order; the first errors.Is match wins.
var errorTable = []errorMapping{
	{goGrant.ErrInvalidInput, http.StatusBadRequest, "invalid_request"},
	{goGrant.ErrInvalidCodeFormat, http.StatusBadRequest, "invalid_grant"},
	{goGrant.ErrInvalidGrantType, http.StatusBadRequest, "unsupported_grant_type"},
	{goGrant.ErrClientMismatch, http.StatusBadRequest, "invalid_client"},
	{goGrant.ErrStateMismatch, http.StatusBadRequest, "invalid_grant"},
	{goGrant.ErrRedirectMismatch, http.StatusBadRequest, "invalid_grant"},
	{goGrant.ErrNonceMismatch, http.StatusBadRequest, "invalid_grant"},
	{goGrant.ErrInvalidScope, http.StatusBadRequest, "invalid_scope"},
	{goGrant.ErrInvalidPassword, http.StatusUnauthorized, "invalid_credentials"},
	{goGrant.ErrNoLocalCredential, http.StatusUnauthorized, "no_local_credential"},
	{goGrant.ErrInvalidAccessToken, http.StatusUnauthorized, "invalid_token"},
	{goGrant.ErrIncompleteAccountEditNotAllowed, http.StatusForbidden, "account_incomplete"},
	{goGrant.ErrGrantNotFound, http.StatusNotFound, "invalid_grant"},
	{goGrant.ErrUserNotRegistered, http.StatusNotFound, "user_not_registered"},
	{goGrant.ErrProviderUnknown, http.StatusNotFound, "unknown_provider"},
	{goGrant.ErrEmailAlreadyInUse, http.StatusConflict, "email_in_use"},
	{goGrant.ErrSessionAlreadyRotated, http.StatusConflict, "session_rotated"},
	{goGrant.ErrEmailAlreadyVerified, http.StatusConflict, "email_already_verified"},
	{goGrant.ErrAccountComplete, http.StatusConflict, "account_complete"},
	{goGrant.ErrLoginRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{goGrant.ErrRequestRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{goGrant.ErrProviderExchangeFailed, http.StatusBadGateway, "provider_error"},
	{goGrant.ErrProviderUnavailable, http.StatusBadGateway, "provider_unavailable"},
	{goGrant.ErrRedisUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{goGrant.ErrUserStoreUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{goGrant.ErrMailUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{goGrant.ErrEngineNotReady, http.StatusServiceUnavailable, "unavailable"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"err", err,
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", goGrant.ErrInvalidInput, err)
	}
	return nil
}

