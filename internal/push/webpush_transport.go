package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
	"github.com/AlibekovAA/webpush-relay/internal/vapid"
)

const maxErrorBodySize = 512

type WebPushTransport struct {
	identity   vapid.Identity
	ttl        int
	httpClient webpush.HTTPClient
}

type WebPushTransportConfig struct {
	TTL     int
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient webpush.HTTPClient
}

func NewWebPushTransport(identity vapid.Identity, config WebPushTransportConfig) *WebPushTransport {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &WebPushTransport{
		identity:   identity,
		ttl:        config.TTL,
		httpClient: client,
	}
}

func (t *WebPushTransport) Send(ctx context.Context, subscription domain.PushSubscription, payload []byte) error {
	sub := &webpush.Subscription{
		Endpoint: subscription.Endpoint,
		Keys: webpush.Keys{
			Auth:   subscription.Keys.Auth,
			P256dh: subscription.Keys.P256dh,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      t.httpClient,
		Subscriber:      t.identity.Subject,
		TTL:             t.ttl,
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  t.identity.Keys.PublicKey,
		VAPIDPrivateKey: t.identity.Keys.PrivateKey,
	})
	if err != nil {
		return fmt.Errorf("failed to send web push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &DeliveryError{
		StatusCode: resp.StatusCode,
		Endpoint:   subscription.Endpoint,
		Body:       strings.TrimSpace(string(body)),
	}
}
