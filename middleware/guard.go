package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goGrant "github.com/MrEthical07/goGrant"
)

// TokenValidator is satisfied by *goGrant.Engine.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) (*goGrant.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [Guard].
func PrincipalFromContext(ctx context.Context) (*goGrant.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*goGrant.Principal)
	return p, ok
}

// Guard rejects requests without a live bearer token. A Redis outage is
// reported as 503 so clients do not discard a token that is still valid.
func Guard(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			p, err := validator.ValidateAccessToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, goGrant.ErrRedisUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
