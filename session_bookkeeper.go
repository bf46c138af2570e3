package goGrant

import (
	"context"

	"github.com/MrEthical07/goGrant/session"
)

// sessionBookkeeper keeps user:<id>:sessions in step with the session
// records. It runs inline on every published event.
type sessionBookkeeper struct {
	registry *session.Registry
}

func (b *sessionBookkeeper) Observe(ctx context.Context, event Event) error {
	if b == nil || b.registry == nil || event.UserID == "" {
		return nil
	}

	switch event.Name {
	case EventSessionCreated:
		return b.registry.RegisterSessionKey(ctx, event.UserID, event.SessionKey)
	case EventSessionClosed:
		return b.registry.UnregisterSessionKey(ctx, event.UserID, event.SessionKey)
	case EventAllSessionsClosed:
		return b.registry.UnregisterAllSessionKeys(ctx, event.UserID)
	case EventSessionRefreshed:
		return b.registry.UpdateSessionKey(ctx, event.UserID, event.PreviousSessionKey, event.SessionKey)
	default:
		return nil
	}
}
