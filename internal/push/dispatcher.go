package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/AlibekovAA/webpush-relay/internal/common/constants"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
	"github.com/AlibekovAA/webpush-relay/internal/observability/metrics"
	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
)

type Dispatcher struct {
	transport            Transport
	alerts               AlertForwarder
	log                  *logger.Logger
	suppressWhenAttached bool
	inflight             sync.WaitGroup
}

type DispatcherDeps struct {
	Transport Transport
	// Alerts is nil when no external alerting is configured.
	Alerts AlertForwarder
	Log    *logger.Logger
}

type DispatcherConfig struct {
	// SuppressWhenAttached skips the whole push when the recipient has any
	// live connection.
	SuppressWhenAttached bool
}

func NewDispatcher(deps DispatcherDeps, config DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		transport:            deps.Transport,
		alerts:               deps.Alerts,
		log:                  deps.Log,
		suppressWhenAttached: config.SuppressWhenAttached,
	}
}

// Push delivers payload to every subscribed session of recipient. With
// onlyOffline set, sessions that are currently attached are skipped. Session
// lookup and delivery run in the background; Push returns once they are
// scheduled.
func (d *Dispatcher) Push(ctx context.Context, recipient Recipient, payload Payload, onlyOffline bool) {
	attached := recipient.AttachedTokens()
	if d.suppressWhenAttached && len(attached) > 0 {
		metrics.PushDispatchTotal.WithLabelValues("suppressed_attached").Inc()
		return
	}

	ctx = context.WithoutCancel(ctx)

	if d.alerts != nil {
		d.alerts.Forward(ctx, payload.AlertMessage())
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.fanOut(ctx, recipient, payload, attached, onlyOffline)
	}()
}

func (d *Dispatcher) fanOut(ctx context.Context, recipient Recipient, payload Payload, attached map[string]struct{}, onlyOffline bool) {
	lookupCtx, cancel := context.WithTimeout(ctx, constants.SessionLookupTimeout)
	sessions, err := recipient.Sessions(lookupCtx)
	cancel()
	if err != nil {
		metrics.PushDispatchTotal.WithLabelValues("sessions_failed").Inc()
		d.log.WithFields(ctx, logger.Fields{
			"user":   recipient.Name(),
			"action": "push_sessions_failed",
		}).Errorf("failed to load push sessions: %v", err)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		metrics.PushDispatchTotal.WithLabelValues("marshal_failed").Inc()
		d.log.WithFields(ctx, logger.Fields{
			"user":   recipient.Name(),
			"action": "push_marshal_failed",
		}).Errorf("failed to marshal push payload: %v", err)
		return
	}

	targets := 0
	for _, session := range sessions {
		subscription, ok := session.Subscription()
		if !ok {
			continue
		}
		if onlyOffline {
			if _, live := attached[session.Token()]; live {
				continue
			}
		}
		targets++
		d.send(ctx, recipient, subscription, body)
	}

	if targets == 0 {
		metrics.PushDispatchTotal.WithLabelValues("no_targets").Inc()
		return
	}
	metrics.PushDispatchTotal.WithLabelValues("dispatched").Inc()
}

// DeliverSingle sends payload to one subscription of recipient, ignoring
// presence.
func (d *Dispatcher) DeliverSingle(ctx context.Context, recipient Recipient, subscription domain.PushSubscription, payload Payload) {
	ctx = context.WithoutCancel(ctx)

	body, err := json.Marshal(payload)
	if err != nil {
		d.log.WithFields(ctx, logger.Fields{
			"user":   recipient.Name(),
			"action": "push_marshal_failed",
		}).Errorf("failed to marshal push payload: %v", err)
		return
	}

	d.send(ctx, recipient, subscription, body)
}

// Drain blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) send(ctx context.Context, recipient Recipient, subscription domain.PushSubscription, body []byte) {
	d.inflight.Add(1)
	metrics.PushDeliveriesInFlight.Inc()

	go func() {
		defer d.inflight.Done()
		defer metrics.PushDeliveriesInFlight.Dec()

		start := time.Now()
		err := d.transport.Send(ctx, subscription, body)
		metrics.PushDeliveryDurationSeconds.Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.PushDeliveriesTotal.WithLabelValues("success").Inc()
			return
		}

		var deliveryErr *DeliveryError
		if errors.As(err, &deliveryErr) && deliveryErr.IsClientError() {
			metrics.PushDeliveriesTotal.WithLabelValues("rejected").Inc()
			d.log.WithFields(ctx, logger.Fields{
				"user":        recipient.Name(),
				"status_code": deliveryErr.StatusCode,
				"action":      "push_subscription_rejected",
			}).Warnf("WebPush subscription for %s returned an error (%d), removing subscription", recipient.Name(), deliveryErr.StatusCode)
			d.prune(ctx, recipient, subscription)
			return
		}

		metrics.PushDeliveriesTotal.WithLabelValues("failed").Inc()
		d.log.WithFields(ctx, logger.Fields{
			"user":   recipient.Name(),
			"action": "push_delivery_failed",
		}).Errorf("WebPush Error (%v)", err)
	}()
}

// prune unregisters every session of recipient whose subscription shares the
// failed endpoint; the same subscription can be registered from several
// sessions.
func (d *Dispatcher) prune(ctx context.Context, recipient Recipient, failed domain.PushSubscription) {
	sessions, err := recipient.Sessions(ctx)
	if err != nil {
		d.log.WithFields(ctx, logger.Fields{
			"user":   recipient.Name(),
			"action": "push_prune_sessions_failed",
		}).Errorf("failed to load push sessions for pruning: %v", err)
		return
	}

	for _, session := range sessions {
		subscription, ok := session.Subscription()
		if !ok || !subscription.SameEndpoint(failed) {
			continue
		}
		if err := session.UnregisterSubscription(ctx); err != nil {
			d.log.WithFields(ctx, logger.Fields{
				"user":   recipient.Name(),
				"action": "push_prune_failed",
			}).Errorf("failed to unregister push subscription: %v", err)
			continue
		}
		metrics.PushSubscriptionsPruned.Inc()
	}
}
