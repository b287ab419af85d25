package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	pgx "github.com/jackc/pgx/v4"

	"github.com/AlibekovAA/webpush-relay/internal/observability/metrics"
)

const subscriptionsTable = "push_subscriptions"

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// HandleQueryError records the query duration and maps "no rows" from either
// driver to notFoundErr.
func HandleQueryError(err error, notFoundErr error, operation string, startTime time.Time) error {
	MeasureQueryDuration(operation, startTime)

	if err == nil {
		return nil
	}
	if isNoRows(err) {
		return notFoundErr
	}
	metrics.DBQueryErrors.WithLabelValues(operation, subscriptionsTable, fmt.Sprintf("%T", err)).Inc()
	return fmt.Errorf("failed to %s: %w", operation, err)
}

func HandleExecError(err error, operation string, startTime time.Time) error {
	MeasureQueryDuration(operation, startTime)

	if err == nil {
		return nil
	}
	metrics.DBQueryErrors.WithLabelValues(operation, subscriptionsTable, fmt.Sprintf("%T", err)).Inc()
	return fmt.Errorf("failed to %s: %w", operation, err)
}

func MeasureQueryDuration(operation string, startTime time.Time) {
	metrics.DBQueryDurationSeconds.WithLabelValues(operation, subscriptionsTable).Observe(time.Since(startTime).Seconds())
}
