package goGrant

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. SignIn uses it for
// the per-IP sign-in budget when IP throttling is enabled.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the address attached by [WithClientIP].
func ClientIPFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	ip, ok := ctx.Value(clientIPContextKey{}).(string)
	return ip, ok && ip != ""
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ClientIPFromContext(ctx)
	return ip
}
