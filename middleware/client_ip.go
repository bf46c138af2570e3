package middleware

import (
	"net"
	"net/http"

	goGrant "github.com/MrEthical07/goGrant"
)

// ClientIP attaches the host part of r.RemoteAddr to the request context
// with goGrant.WithClientIP. Run it after a proxy-header middleware such as
// chi's RealIP when the server sits behind a load balancer.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if ip != "" {
			r = r.WithContext(goGrant.WithClientIP(r.Context(), ip))
		}
		next.ServeHTTP(w, r)
	})
}
