package goGrant

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventName identifies a lifecycle event.
type EventName string

// Lifecycle events published by the engine.
const (
	EventUserSignUp        EventName = "userSignUp"
	EventUserSignIn        EventName = "userSignIn"
	EventAuthCodeIssued    EventName = "authCodeIssued"
	EventSessionCreated    EventName = "sessionCreated"
	EventSessionClosed     EventName = "sessionClosed"
	EventAllSessionsClosed EventName = "allSessionsClosed"
	EventSessionRefreshed  EventName = "sessionRefreshed"
)

// Event is one lifecycle fact. Session keys are full cache keys
// (session:<access_token>), so events carrying them must only reach trusted
// sinks. Grant codes appear only as a fingerprint.
type Event struct {
	Timestamp          time.Time `json:"timestamp"`
	Name               EventName `json:"event"`
	UserID             string    `json:"user_id,omitempty"`
	ClientID           string    `json:"client_id,omitempty"`
	Provider           string    `json:"provider,omitempty"`
	Grant              string    `json:"grant,omitempty"`
	SessionKey         string    `json:"session_key,omitempty"`
	PreviousSessionKey string    `json:"previous_session_key,omitempty"`
}

// EventSink receives lifecycle events. Emit must not block for long; the
// engine calls it from the dispatcher goroutine when events are async and
// inline otherwise.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements EventSink.
func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

// Emit implements EventSink. It blocks until the event is buffered or ctx ends.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON document per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements EventSink.
func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
