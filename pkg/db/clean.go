// Package db pkg/db/clean.go implements bounded retention deletes.
package db

import (
	"context"
	"fmt"
	"time"
)

// retentionColumns is the allowlist of (table, timestamp column) pairs the
// sweeper may delete from. latest_state and gps_latest_filtered are
// deliberately absent.
var retentionColumns = map[string]string{
	"gps_raw_history": "received_at",
	"history":         "received_at",
	"events":          "created_at",
}

// DeleteOlderThan removes at most batchSize rows older than cutoff from the
// given table and reports how many were deleted. Callers loop until it
// returns zero.
func (db *DB) DeleteOlderThan(ctx context.Context, table, column string, cutoff time.Time, batchSize int) (int64, error) {
	allowed, ok := retentionColumns[table]
	if !ok || allowed != column {
		return 0, fmt.Errorf("%w: %w: %s.%s", ErrFatal, errUnknownTable, table, column)
	}

	deleteSQL := fmt.Sprintf(`
		DELETE FROM %s WHERE rowid IN (
			SELECT rowid FROM %s
			WHERE %s < ?
			ORDER BY rowid
			LIMIT ?
		)
	`, table, table, column)

	res, err := db.ExecContext(ctx, deleteSQL, cutoff.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", errFailedToDelete, table, classify(err))
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", errFailedToDelete, table, classify(err))
	}

	return deleted, nil
}
