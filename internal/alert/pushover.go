package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/AlibekovAA/webpush-relay/internal/common/config"
	"github.com/AlibekovAA/webpush-relay/internal/common/constants"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
	"github.com/AlibekovAA/webpush-relay/internal/common/resilience"
	"github.com/AlibekovAA/webpush-relay/internal/observability/metrics"
)

type pushoverMessage struct {
	Token   string `json:"token"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// PushoverForwarder posts a one-line alert per notification to Pushover.
// Each alert is a single attempt in its own goroutine.
type PushoverForwarder struct {
	url        string
	apiToken   string
	userKey    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	log        *logger.Logger
	wg         sync.WaitGroup
}

// NewPushoverForwarder returns nil when cfg carries no credentials.
func NewPushoverForwarder(cfg config.PushoverConfig, log *logger.Logger) *PushoverForwarder {
	if !cfg.Enabled() {
		return nil
	}

	url := cfg.URL
	if url == "" {
		url = constants.DefaultPushoverURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultPushoverTimeout
	}

	return &PushoverForwarder{
		url:        url,
		apiToken:   cfg.APIToken,
		userKey:    cfg.UserKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Threshold:  constants.PushoverCircuitBreakerThreshold,
			ResetAfter: constants.PushoverCircuitBreakerReset,
			Name:       "pushover",
			Logger:     log,
		}),
		log: log,
	}
}

func (f *PushoverForwarder) Forward(ctx context.Context, message string) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		err := f.breaker.Call(ctx, func(callCtx context.Context) error {
			return f.post(callCtx, message)
		})
		if err != nil {
			metrics.PushAlertsTotal.WithLabelValues("failed").Inc()
			f.log.WithFields(ctx, logger.Fields{
				"action": "pushover_forward_failed",
			}).Warnf("pushover push failed: %v", err)
			return
		}

		metrics.PushAlertsTotal.WithLabelValues("success").Inc()
		f.log.WithFields(ctx, logger.Fields{
			"action": "pushover_forward_success",
		}).Info("pushover push successful.")
	}()
}

// Drain blocks until every forwarded alert has finished or ctx is done.
func (f *PushoverForwarder) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *PushoverForwarder) post(ctx context.Context, message string) error {
	body, err := json.Marshal(pushoverMessage{
		Token:   f.apiToken,
		User:    f.userKey,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal pushover message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send pushover request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover returned status %d", resp.StatusCode)
	}
	return nil
}
