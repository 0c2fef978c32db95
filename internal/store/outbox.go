package store

import (
	"context"
	"database/sql"
	"fmt"
)

// OpSyncThread asks the search worker to bring one thread's index entry up to date.
const OpSyncThread = "sync_thread"

func enqueueThreadSync(ctx context.Context, tx *sql.Tx, threadID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO search_outbox (op, aggregate_id)
		VALUES ($1, $2)
	`, OpSyncThread, threadID)
	if err != nil {
		return fmt.Errorf("enqueue search sync: %w", err)
	}
	return nil
}

// EnqueueThreadSync schedules a search sync outside of any other write.
func (s *PostgresStore) EnqueueThreadSync(ctx context.Context, threadID string) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		return enqueueThreadSync(ctx, tx, threadID)
	})
}
