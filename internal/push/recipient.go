package push

import (
	"context"

	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
)

// Recipient is the user a notification is for.
type Recipient interface {
	Name() string
	// AttachedTokens returns the session tokens holding a live connection.
	AttachedTokens() map[string]struct{}
	// Sessions returns the current sessions. Implementations must reflect
	// unregistrations made through Session.UnregisterSubscription.
	Sessions(ctx context.Context) ([]Session, error)
}

type Session interface {
	Token() string
	Subscription() (domain.PushSubscription, bool)
	// UnregisterSubscription removes the session's subscription. Removing an
	// already removed subscription is not an error.
	UnregisterSubscription(ctx context.Context) error
}

// AlertForwarder relays a one-line message to an external alerting service.
// Forward must not block on network I/O.
type AlertForwarder interface {
	Forward(ctx context.Context, message string)
}
