package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/AlibekovAA/webpush-relay/internal/common/clock"
	"github.com/AlibekovAA/webpush-relay/internal/common/constants"
	"github.com/AlibekovAA/webpush-relay/internal/common/db"
	commonerrors "github.com/AlibekovAA/webpush-relay/internal/common/errors"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
	"github.com/AlibekovAA/webpush-relay/internal/observability/metrics"
	"github.com/AlibekovAA/webpush-relay/internal/push"
	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
	"github.com/AlibekovAA/webpush-relay/internal/subscription/repository"
)

// PresenceOracle reports the session tokens of a user that are attached.
type PresenceOracle interface {
	AttachedTokens(userID string) map[string]struct{}
}

type SubscriptionService struct {
	repo     repository.Repository
	presence PresenceOracle
	clock    clock.Clock
	log      *logger.Logger
}

func NewSubscriptionService(repo repository.Repository, presence PresenceOracle, clk clock.Clock, log *logger.Logger) *SubscriptionService {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &SubscriptionService{
		repo:     repo,
		presence: presence,
		clock:    clk,
		log:      log,
	}
}

func (s *SubscriptionService) Register(ctx context.Context, owner domain.Owner, subscription domain.PushSubscription) error {
	if owner.SessionToken == "" {
		return commonerrors.ErrMissingSessionToken
	}
	if err := validateSubscription(subscription); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id": owner.UserID,
			"action":  "push_subscription_invalid",
		}).Warnf("push subscription rejected: %v", err)
		return commonerrors.ErrInvalidSubscription.WithCause(err)
	}

	now := s.clock.Now()
	createdAt := now
	existing, err := s.repo.FindByToken(ctx, owner.SessionToken)
	switch {
	case err == nil:
		createdAt = existing.CreatedAt
	case !errors.Is(err, repository.ErrSubscriptionNotFound):
		return commonerrors.ErrSubscriptionSaveFailed.WithCause(err)
	}

	record := domain.Record{
		Token:        owner.SessionToken,
		UserID:       owner.UserID,
		Username:     owner.Username,
		Subscription: subscription,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}
	err = db.RetryWithBackoff(ctx, s.log, db.DefaultRetryConfig, func() error {
		return s.repo.Upsert(ctx, record)
	})
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id": owner.UserID,
			"action":  "push_subscription_save_failed",
		}).Errorf("push subscription save failed: %v", err)
		return commonerrors.ErrSubscriptionSaveFailed.WithCause(err)
	}

	metrics.PushSubscriptionsRegistered.Inc()
	s.log.WithFields(ctx, logger.Fields{
		"user_id": owner.UserID,
		"action":  "push_subscription_registered",
	}).Info("push subscription registered")
	return nil
}

func (s *SubscriptionService) Unregister(ctx context.Context, token string) error {
	if token == "" {
		return commonerrors.ErrMissingSessionToken
	}
	err := db.RetryWithBackoff(ctx, s.log, db.DefaultRetryConfig, func() error {
		return s.repo.DeleteByToken(ctx, token)
	})
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"action": "push_subscription_delete_failed",
		}).Errorf("push subscription delete failed: %v", err)
		return commonerrors.ErrSubscriptionDeleteFailed.WithCause(err)
	}
	return nil
}

// UnregisterEndpoint removes the subscription of token only while it still
// points at endpoint.
func (s *SubscriptionService) UnregisterEndpoint(ctx context.Context, token, endpoint string) error {
	err := db.RetryWithBackoff(ctx, s.log, db.DefaultRetryConfig, func() error {
		return s.repo.DeleteByTokenAndEndpoint(ctx, token, endpoint)
	})
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"action": "push_subscription_delete_failed",
		}).Errorf("push subscription delete failed: %v", err)
		return commonerrors.ErrSubscriptionDeleteFailed.WithCause(err)
	}
	return nil
}

func (s *SubscriptionService) Get(ctx context.Context, token string) (domain.Record, error) {
	record, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return domain.Record{}, commonerrors.ErrSubscriptionNotFound
		}
		return domain.Record{}, commonerrors.ErrSubscriptionGetFailed.WithCause(err)
	}
	return record, nil
}

// Recipient is a live view: sessions and presence are looked up on every use.
func (s *SubscriptionService) Recipient(userID, name string) push.Recipient {
	return &recipient{service: s, userID: userID, name: name}
}

func validateSubscription(sub domain.PushSubscription) error {
	if sub.Endpoint == "" {
		return errors.New("endpoint is empty")
	}
	if len(sub.Endpoint) > constants.MaxEndpointLength {
		return fmt.Errorf("endpoint exceeds %d bytes", constants.MaxEndpointLength)
	}
	u, err := url.Parse(sub.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint is not a url: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("endpoint %q is not an absolute http(s) url", sub.Endpoint)
	}
	if sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return errors.New("keys.p256dh and keys.auth are required")
	}
	return nil
}

type recipient struct {
	service *SubscriptionService
	userID  string
	name    string
}

func (r *recipient) Name() string {
	return r.name
}

func (r *recipient) AttachedTokens() map[string]struct{} {
	if r.service.presence == nil {
		return map[string]struct{}{}
	}
	return r.service.presence.AttachedTokens(r.userID)
}

func (r *recipient) Sessions(ctx context.Context) ([]push.Session, error) {
	records, err := r.service.repo.ListByUser(ctx, r.userID)
	if err != nil {
		return nil, commonerrors.ErrSubscriptionGetFailed.WithCause(err)
	}

	sessions := make([]push.Session, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, &session{service: r.service, record: rec})
	}
	return sessions, nil
}

type session struct {
	service *SubscriptionService
	record  domain.Record
}

func (s *session) Token() string {
	return s.record.Token
}

func (s *session) Subscription() (domain.PushSubscription, bool) {
	return s.record.Subscription, s.record.Subscription.Endpoint != ""
}

func (s *session) UnregisterSubscription(ctx context.Context) error {
	return s.service.UnregisterEndpoint(ctx, s.record.Token, s.record.Subscription.Endpoint)
}
