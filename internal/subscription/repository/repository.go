package repository

import (
	"context"
	"errors"

	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
)

var ErrSubscriptionNotFound = errors.New("push subscription not found")

// Repository stores one push subscription per session token.
//
// The deletes must succeed when nothing matches: pruning can race with itself
// and with explicit unregistration. DeleteByTokenAndEndpoint leaves the row
// alone when the token has since moved to another endpoint.
type Repository interface {
	Upsert(ctx context.Context, record domain.Record) error
	FindByToken(ctx context.Context, token string) (domain.Record, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Record, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByTokenAndEndpoint(ctx context.Context, token, endpoint string) error
}
