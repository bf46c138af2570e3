package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	goGrant "github.com/MrEthical07/goGrant"
)

type stubValidator struct {
	token string
	err   error
	calls int
}

func (s *stubValidator) ValidateAccessToken(_ context.Context, token string) (*goGrant.Principal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if token != s.token {
		return nil, goGrant.ErrInvalidAccessToken
	}
	return &goGrant.Principal{UserID: "u1", Token: token}, nil
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatal("expected principal in context")
		}
		_, _ = w.Write([]byte(p.UserID))
	})
}

func TestGuard(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		err        error
		wantStatus int
		wantCalls  int
	}{
		{"valid", "Bearer tok", nil, http.StatusOK, 1},
		{"lowercase scheme", "bearer tok", nil, http.StatusOK, 1},
		{"missing header", "", nil, http.StatusUnauthorized, 0},
		{"wrong scheme", "Basic tok", nil, http.StatusUnauthorized, 0},
		{"empty token", "Bearer ", nil, http.StatusUnauthorized, 0},
		{"unknown token", "Bearer other", nil, http.StatusUnauthorized, 1},
		{"redis down", "Bearer tok", fmt.Errorf("%w: dial tcp", goGrant.ErrRedisUnavailable), http.StatusServiceUnavailable, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := &stubValidator{token: "tok", err: tc.err}
			req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			Guard(v)(okHandler(t)).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if v.calls != tc.wantCalls {
				t.Fatalf("expected %d validator calls, got %d", tc.wantCalls, v.calls)
			}
			if tc.wantStatus == http.StatusOK && rec.Body.String() != "u1" {
				t.Fatalf("unexpected body %q", rec.Body.String())
			}
		})
	}
}

func TestGuardNilValidator(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()

	Guard(nil)(http.NotFoundHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	var got string
	h := ClientIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = goGrant.ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "203.0.113.7" {
		t.Fatalf("expected host without port, got %q", got)
	}

	req.RemoteAddr = "198.51.100.2"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "198.51.100.2" {
		t.Fatalf("expected bare address kept, got %q", got)
	}
}
