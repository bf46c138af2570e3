package goGrant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/goGrant/internal/codec"
	"github.com/MrEthical07/goGrant/provider"
	"github.com/MrEthical07/goGrant/userstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testClientID    = "web-client"
	testRedirectURI = "https://app.example.com/callback"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendMail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) names() []EventName {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventName, len(s.events))
	for i, e := range s.events {
		out[i] = e.Name
	}
	return out
}

func (s *recordingSink) last(name EventName) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Name == name {
			return s.events[i], true
		}
	}
	return Event{}, false
}

type testEnv struct {
	engine    *Engine
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	store     *userstore.Memory
	mailer    *recordingMailer
	sink      *recordingSink
	providers []provider.Provider
}

type testOption func(*Config, *testEnv)

func withProvider(p provider.Provider) testOption {
	return func(_ *Config, env *testEnv) {
		env.providers = append(env.providers, p)
	}
}

func withConfig(fn func(*Config)) testOption {
	return func(cfg *Config, _ *testEnv) {
		fn(cfg)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Client.ClientID = testClientID
	cfg.Client.RedirectURI = testRedirectURI
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "https://auth.example.com"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Events.Async = false
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, opts ...testOption) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		mr:     mr,
		rdb:    rdb,
		store:  userstore.NewMemory(),
		mailer: &recordingMailer{},
		sink:   &recordingSink{},
	}

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg, env)
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(env.store).
		WithMailer(env.mailer).
		WithEventSink(env.sink).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, p := range env.providers {
		b.WithProvider(p)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func testAuthRequest(state string) AuthRequest {
	return AuthRequest{
		ClientID:    testClientID,
		RedirectURI: testRedirectURI,
		State:       state,
		Nonce:       "n-" + state,
	}
}

func (env *testEnv) signUp(t *testing.T, email, password string) *AuthorizationCode {
	t.Helper()
	code, err := env.engine.SignUp(context.Background(), SignUpInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  password,
	}, testAuthRequest("s1"))
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	return code
}

func (env *testEnv) exchange(t *testing.T, code *AuthorizationCode) *TokenResponse {
	t.Helper()
	resp, err := env.engine.ValidateAuthCode(context.Background(), CodeExchange{
		GrantType:   GrantTypeAuthorizationCode,
		Code:        code.Code,
		State:       code.State,
		RedirectURI: testRedirectURI,
	}, testClientID)
	if err != nil {
		t.Fatalf("ValidateAuthCode failed: %v", err)
	}
	return resp
}

// linkCodeFrom extracts the decoded link code from a mailed body.
func linkCodeFrom(t *testing.T, body string) (encoded, raw string) {
	t.Helper()
	start := strings.Index(body, testRedirectURI)
	if start < 0 {
		t.Fatalf("no link in body %q", body)
	}
	rest := body[start:]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	u, err := url.Parse(rest)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	encoded = u.Query().Get("code")
	raw, err = codec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode link code: %v", err)
	}
	return encoded, raw
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
