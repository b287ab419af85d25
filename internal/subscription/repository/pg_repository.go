package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/webpush-relay/internal/common/db"
	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Upsert(ctx context.Context, record domain.Record) error {
	start := time.Now()
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO push_subscriptions (token, user_id, user_name, endpoint, p256dh, auth, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (token) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   user_name = EXCLUDED.user_name,
		   endpoint = EXCLUDED.endpoint,
		   p256dh = EXCLUDED.p256dh,
		   auth = EXCLUDED.auth,
		   updated_at = EXCLUDED.updated_at`,
		record.Token,
		record.UserID,
		record.Username,
		record.Subscription.Endpoint,
		record.Subscription.Keys.P256dh,
		record.Subscription.Keys.Auth,
		record.CreatedAt,
		record.UpdatedAt,
	)
	return db.HandleExecError(err, "upsert push subscription", start)
}

func (r *PgRepository) FindByToken(ctx context.Context, token string) (domain.Record, error) {
	start := time.Now()
	row := r.pool.QueryRow(
		ctx,
		`SELECT token, user_id, user_name, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions WHERE token = $1`,
		token,
	)

	var rec domain.Record
	err := row.Scan(
		&rec.Token,
		&rec.UserID,
		&rec.Username,
		&rec.Subscription.Endpoint,
		&rec.Subscription.Keys.P256dh,
		&rec.Subscription.Keys.Auth,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err := db.HandleQueryError(err, ErrSubscriptionNotFound, "find push subscription", start); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

func (r *PgRepository) ListByUser(ctx context.Context, userID string) ([]domain.Record, error) {
	start := time.Now()
	rows, err := r.pool.Query(
		ctx,
		`SELECT token, user_id, user_name, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, db.HandleQueryError(err, nil, "list push subscriptions", start)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(
			&rec.Token,
			&rec.UserID,
			&rec.Username,
			&rec.Subscription.Endpoint,
			&rec.Subscription.Keys.P256dh,
			&rec.Subscription.Keys.Auth,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, db.HandleQueryError(err, nil, "scan push subscription", start)
		}
		records = append(records, rec)
	}

	if err := db.HandleQueryError(rows.Err(), nil, "list push subscriptions", start); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PgRepository) DeleteByToken(ctx context.Context, token string) error {
	start := time.Now()
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE token = $1`, token)
	return db.HandleExecError(err, "delete push subscription", start)
}

func (r *PgRepository) DeleteByTokenAndEndpoint(ctx context.Context, token, endpoint string) error {
	start := time.Now()
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE token = $1 AND endpoint = $2`, token, endpoint)
	return db.HandleExecError(err, "delete push subscription by endpoint", start)
}
