package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	goGrant "github.com/MrEthical07/goGrant"
	grantmw "github.com/MrEthical07/goGrant/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const clientIDHeader = "X-Client-ID"

// server is the HTTP surface over one engine.
type server struct {
	engine  *goGrant.Engine
	logger  *slog.Logger
	metrics http.Handler
	ping    func(ctx context.Context) error
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1/auth", func(r chi.Router) {
		r.With(grantmw.ClientIP).Post("/signup", s.handleSignUp)
		r.With(grantmw.ClientIP).Post("/signin", s.handleSignIn)
		r.Post("/token", s.handleToken)
		r.Post("/logout", s.handleLogOut)
		r.With(grantmw.Guard(s.engine)).Post("/logout/all", s.handleLogOutAll)

		r.Post("/recover", s.handleRecover)
		r.Get("/recover", s.handleGetResetter)
		r.Post("/recover/reset", s.handleResetPassword)
		r.Post("/email/verification", s.handleEmailVerification)
		r.Post("/email/verify", s.handleVerifyEmail)

		r.Get("/{provider}", s.handleProviderSignUp)
		r.Get("/{provider}/callback", s.handleProviderCallback)
	})

	r.Route("/v1/users/me", func(r chi.Router) {
		r.Use(grantmw.Guard(s.engine))
		r.Get("/", s.handleMe)
		r.Patch("/", s.handleUpdateProfile)
		r.Delete("/", s.handleDeleteAccount)
		r.Patch("/missing", s.handleCompleteMissing)
		r.Post("/password", s.handleChangePassword)
		r.Post("/connection", s.handleSetConnection)
	})

	return r
}

// requestID tags every request with an X-Request-ID, keeping one supplied
// by the caller.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
