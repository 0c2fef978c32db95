// Package outbox drains search_outbox rows into the search index.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wisdom/api/internal/metrics"
	"wisdom/api/internal/store"
)

const (
	selectReadyRowsSQL = `
SELECT id, op, aggregate_id
FROM search_outbox
WHERE status = 'pending' AND next_attempt_at <= now()
ORDER BY id ASC
FOR UPDATE SKIP LOCKED
LIMIT $1`

	markDoneSQL = `UPDATE search_outbox SET status='done', updated_at=now() WHERE id=$1`

	markFailedSQL = `
UPDATE search_outbox
SET attempt_count = attempt_count + 1,
    last_error = $2,
    next_attempt_at = now() + make_interval(secs => LEAST(POWER(2, attempt_count+1), 300)),
    updated_at = now()
WHERE id=$1`

	purgeDoneSQL = `DELETE FROM search_outbox WHERE status='done' AND updated_at < now() - make_interval(secs => $1)`
)

// Syncer applies one thread's current state to the search index.
type Syncer interface {
	SyncThread(ctx context.Context, id string) error
}

// Config controls batch size and polling cadence.
type Config struct {
	BatchSize int
	Interval  time.Duration
	// Retention is how long done rows are kept before being purged.
	Retention time.Duration
}

// Worker processes outbox rows and applies them to the search index.
type Worker struct {
	db     *sql.DB
	log    zerolog.Logger
	syncer Syncer
	cfg    Config
}

func NewWorker(db *sql.DB, syncer Syncer, cfg Config, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Worker{db: db, log: log.With().Str("component", "outbox").Logger(), syncer: syncer, cfg: cfg}
}

// Run polls until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("outbox worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	purgeEvery := time.NewTicker(time.Hour)
	defer purgeEvery.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				// per-row backoff prevents hot-looping
				w.log.Error().Err(err).Msg("outbox process")
			}
		case <-purgeEvery.C:
			if err := w.purge(ctx); err != nil {
				w.log.Warn().Err(err).Msg("outbox purge")
			}
		}
	}
}

type job struct {
	id          int64
	op          string
	aggregateID string
}

// ProcessOnce leases one batch and handles it. It returns the number of rows leased.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	tx, err := w.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	jobs, err := leaseBatch(ctx, tx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, tx.Commit()
	}

	for _, j := range jobs {
		if err := w.handle(ctx, j); err != nil {
			w.log.Warn().Err(err).Int64("id", j.id).Str("op", j.op).Str("aggregate_id", j.aggregateID).Msg("outbox job failed")
			metrics.ObserveOutbox("failed")
			if e := markFailed(ctx, tx, j.id, err); e != nil {
				w.log.Error().Err(e).Int64("id", j.id).Msg("markFailed error")
			}
			continue
		}
		metrics.ObserveOutbox("done")
		if e := markDone(ctx, tx, j.id); e != nil {
			w.log.Error().Err(e).Int64("id", j.id).Msg("markDone error")
		}
	}

	return len(jobs), tx.Commit()
}

func leaseBatch(ctx context.Context, tx *sql.Tx, batchSize int) ([]job, error) {
	rows, err := tx.QueryContext(ctx, selectReadyRowsSQL, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []job
	for rows.Next() {
		var j job
		if err := rows.Scan(&j.id, &j.op, &j.aggregateID); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (w *Worker) handle(ctx context.Context, j job) error {
	switch j.op {
	case store.OpSyncThread:
		return w.syncer.SyncThread(ctx, j.aggregateID)
	default:
		return fmt.Errorf("unknown op: %s", j.op)
	}
}

func markDone(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, markDoneSQL, id)
	return err
}

func markFailed(ctx context.Context, tx *sql.Tx, id int64, cause error) error {
	_, err := tx.ExecContext(ctx, markFailedSQL, id, cause.Error())
	return err
}

func (w *Worker) purge(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, purgeDoneSQL, w.cfg.Retention.Seconds())
	return err
}
