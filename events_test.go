package goGrant

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goGrant/session"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestEventDispatcherDisabledWithoutSinkOrAsync(t *testing.T) {
	if d := newEventDispatcher(EventsConfig{Async: false, BufferSize: 4}, &countingSink{}, nil); d != nil {
		t.Fatal("expected no dispatcher when events are synchronous")
	}
	if d := newEventDispatcher(EventsConfig{Async: true, BufferSize: 4}, nil, nil); d != nil {
		t.Fatal("expected no dispatcher without a sink")
	}
}

func TestEventDispatcherDeliversBeforeClose(t *testing.T) {
	sink := &countingSink{}
	d := newEventDispatcher(EventsConfig{Async: true, BufferSize: 16}, sink, nil)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Name: EventUserSignIn})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 events drained, got %d", got)
	}
}

func TestEventDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := newEventDispatcher(EventsConfig{Async: true, BufferSize: 1, DropIfFull: true}, sink, nil)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Name: "e1"})
	d.Emit(context.Background(), Event{Name: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{Name: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestEventDispatcherBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := newEventDispatcher(EventsConfig{Async: true, BufferSize: 1}, sink, nil)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Name: "e1"})
	d.Emit(context.Background(), Event{Name: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{Name: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestEventDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	var reasons []dropReason
	d := newEventDispatcher(EventsConfig{Async: true, BufferSize: 4, DropIfFull: true}, &countingSink{}, func(_ Event, r dropReason) {
		reasons = append(reasons, r)
	})

	d.Emit(context.Background(), Event{Name: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{Name: "e2"})

	if d.Dropped() != 1 || len(reasons) != 1 || reasons[0] != dropClosed {
		t.Fatalf("expected one closed drop, got %d %v", d.Dropped(), reasons)
	}
}

func TestEventDispatcherCountsCancelledWait(t *testing.T) {
	sink := newGateSink()
	dropped := make(chan dropReason, 1)
	d := newEventDispatcher(EventsConfig{Async: true, BufferSize: 1}, sink, func(e Event, r dropReason) {
		if e.Name == EventSessionClosed {
			dropped <- r
		}
	})
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Name: EventSessionCreated})
	d.Emit(context.Background(), Event{Name: EventSessionRefreshed})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{Name: EventSessionClosed})

	select {
	case r := <-dropped:
		if r != dropCancelled {
			t.Fatalf("expected %s, got %s", dropCancelled, r)
		}
	default:
		t.Fatal("expected the cancelled emit to be reported")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected one dropped event, got %d", d.Dropped())
	}
}

type requestIDKey struct{}

type contextSink struct {
	seen chan context.Context
}

func (s *contextSink) Emit(ctx context.Context, _ Event) {
	s.seen <- ctx
}

func TestEventDispatcherKeepsRequestValuesAfterCancel(t *testing.T) {
	sink := &contextSink{seen: make(chan context.Context, 1)}
	d := newEventDispatcher(EventsConfig{Async: true, BufferSize: 4}, sink, nil)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), requestIDKey{}, "req-7"))
	d.Emit(ctx, Event{Name: EventUserSignIn})
	cancel()

	select {
	case got := <-sink.seen:
		if got.Value(requestIDKey{}) != "req-7" {
			t.Fatal("expected the request id to reach the sink")
		}
		if got.Err() != nil {
			t.Fatalf("expected delivery context to outlive the request, got %v", got.Err())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		Name:      EventSessionClosed,
		UserID:    "u1",
	})

	if !buf.Contains(`"event":"sessionClosed"`) {
		t.Fatal("expected JSON line to contain the event name")
	}
	if !buf.Contains(`"user_id":"u1"`) {
		t.Fatal("expected JSON line to contain user id")
	}
	if !buf.Contains("\n") {
		t.Fatal("expected newline-terminated line")
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{Name: EventUserSignUp})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatalf("expected both sinks called once")
	}
}

func TestChannelSinkForwards(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(context.Background(), Event{Name: EventUserSignUp})
	select {
	case e := <-sink.Events():
		if e.Name != EventUserSignUp {
			t.Fatalf("unexpected event %q", e.Name)
		}
	default:
		t.Fatal("expected buffered event")
	}
}

func TestAsyncEngineEventsReachSink(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t)
	cfg := env.engine.config
	cfg.Events.Async = true
	cfg.Events.BufferSize = 8
	engine, err := New().
		WithConfig(cfg).
		WithRedis(env.rdb).
		WithUserStore(env.store).
		WithMailer(env.mailer).
		WithEventSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.SignUp(context.Background(), SignUpInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "pw"}, testAuthRequest("s1")); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for _, want := range []EventName{EventUserSignUp, EventAuthCodeIssued} {
		select {
		case e := <-sink.Events():
			if e.Name != want {
				t.Fatalf("expected %s, got %s", want, e.Name)
			}
			if e.Timestamp.IsZero() {
				t.Fatal("expected timestamp set")
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestEventsCarryNoSecrets(t *testing.T) {
	var buf syncBuffer
	env := newTestEnv(t)
	engine, err := New().
		WithConfig(env.engine.config).
		WithRedis(env.rdb).
		WithUserStore(env.store).
		WithMailer(env.mailer).
		WithEventSink(NewJSONWriterSink(&buf)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	const secret = "very secret password"
	code, err := engine.SignUp(context.Background(), SignUpInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: secret}, testAuthRequest("s1"))
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	resp, err := engine.ValidateAuthCode(context.Background(), CodeExchange{
		GrantType:   GrantTypeAuthorizationCode,
		Code:        code.Code,
		State:       code.State,
		RedirectURI: testRedirectURI,
	}, testClientID)
	if err != nil {
		t.Fatalf("ValidateAuthCode failed: %v", err)
	}

	for _, needle := range []string{secret, code.Code, resp.Token.RefreshToken} {
		if buf.Contains(needle) {
			t.Fatalf("secret leaked into events: %q", needle)
		}
	}
	if !buf.Contains(session.Key(resp.Token.AccessToken)) {
		t.Fatal("expected session key on sessionCreated")
	}
}

func TestBookkeepingFailureIsCountedNotReturned(t *testing.T) {
	env := newTestEnv(t)

	// No user:<id> mirror exists, so the session cannot be indexed.
	env.engine.publish(context.Background(), Event{
		Name:       EventSessionCreated,
		UserID:     "000000000000000000000000",
		SessionKey: session.Key("tok"),
	})

	if got := env.engine.MetricsSnapshot().Counters[MetricBookkeepingFailure]; got != 1 {
		t.Fatalf("expected one bookkeeping failure, got %d", got)
	}
	if _, ok := env.sink.last(EventSessionCreated); !ok {
		t.Fatal("expected event still delivered to the sink")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(string(b.buf), v)
}
