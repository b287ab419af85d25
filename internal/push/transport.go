package push

import (
	"context"
	"fmt"

	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
)

// Transport delivers an encrypted payload to a push service endpoint.
type Transport interface {
	Send(ctx context.Context, subscription domain.PushSubscription, payload []byte) error
}

// DeliveryError is returned by a Transport when the push service answered
// with a non-success status.
type DeliveryError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("push service returned %d", e.StatusCode)
}

// IsClientError reports a 4xx status: the endpoint itself is invalid, expired
// or gone, and should stop being used.
func (e *DeliveryError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
