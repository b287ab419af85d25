package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AlibekovAA/webpush-relay/internal/common/db"
	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*SQLiteRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = conn.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = conn.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SQLiteRepository{db: conn}, nil
}

func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteRepository) Upsert(ctx context.Context, record domain.Record) error {
	start := time.Now()
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO push_subscriptions (token, user_id, user_name, endpoint, p256dh, auth, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET
		   user_id = excluded.user_id,
		   user_name = excluded.user_name,
		   endpoint = excluded.endpoint,
		   p256dh = excluded.p256dh,
		   auth = excluded.auth,
		   updated_at = excluded.updated_at`,
		record.Token,
		record.UserID,
		record.Username,
		record.Subscription.Endpoint,
		record.Subscription.Keys.P256dh,
		record.Subscription.Keys.Auth,
		record.CreatedAt.UnixMilli(),
		record.UpdatedAt.UnixMilli(),
	)
	return db.HandleExecError(err, "upsert push subscription", start)
}

func (r *SQLiteRepository) FindByToken(ctx context.Context, token string) (domain.Record, error) {
	start := time.Now()
	row := r.db.QueryRowContext(
		ctx,
		`SELECT token, user_id, user_name, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions WHERE token = ?`,
		token,
	)

	rec, err := scanSQLiteRecord(row)
	if err := db.HandleQueryError(err, ErrSubscriptionNotFound, "find push subscription", start); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]domain.Record, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT token, user_id, user_name, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions WHERE user_id = ? ORDER BY created_at, token`,
		userID,
	)
	if err != nil {
		return nil, db.HandleQueryError(err, nil, "list push subscriptions", start)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, db.HandleQueryError(err, nil, "scan push subscription", start)
		}
		records = append(records, rec)
	}

	if err := db.HandleQueryError(rows.Err(), nil, "list push subscriptions", start); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *SQLiteRepository) DeleteByToken(ctx context.Context, token string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE token = ?`, token)
	return db.HandleExecError(err, "delete push subscription", start)
}

func (r *SQLiteRepository) DeleteByTokenAndEndpoint(ctx context.Context, token, endpoint string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE token = ? AND endpoint = ?`, token, endpoint)
	return db.HandleExecError(err, "delete push subscription by endpoint", start)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (domain.Record, error) {
	var (
		rec       domain.Record
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&rec.Token,
		&rec.UserID,
		&rec.Username,
		&rec.Subscription.Endpoint,
		&rec.Subscription.Keys.P256dh,
		&rec.Subscription.Keys.Auth,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.Record{}, err
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return rec, nil
}
