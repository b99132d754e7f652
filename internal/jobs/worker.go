package jobs

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/juriscope/juriscope-timeline/internal/model"
)

// maxBackoff caps the retry delay for failing merge jobs.
const maxBackoff = 300 * time.Second

// leaseWindow is how long a claimed job stays invisible to other workers.
// Jobs claimed by a worker that died mid-merge become leasable again once
// the window lapses.
const leaseWindow = 5 * time.Minute

// Merger runs one merge pass for a case.
type Merger interface {
	MergeCase(ctx context.Context, caseID string) (*model.MergeResult, error)
}

// Config controls batch size and polling cadence.
type Config struct {
	BatchSize int
	Interval  time.Duration
}

// Worker leases pending merge jobs and executes them. Failed jobs are
// rescheduled with exponential backoff instead of being dropped.
type Worker struct {
	db      *sql.DB
	dialect dialect
	merger  Merger
	cfg     Config
	log     zerolog.Logger
}

func NewWorker(db *sql.DB, driver string, merger Merger, cfg Config, log zerolog.Logger) (*Worker, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Worker{db: db, dialect: d, merger: merger, cfg: cfg, log: log}, nil
}

// Run starts the polling loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("merge worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("merge worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.processOnce(ctx); err != nil {
				// Log and continue; per-job backoff prevents hot-looping.
				w.log.Error().Err(err).Msg("merge worker processOnce")
			}
		}
	}
}

type job struct {
	id           int64
	caseID       string
	attemptCount int
}

// processOnce claims a batch in one short transaction, then merges with no
// transaction (and no pool connection) held. MergeCase goes through the store
// on the same *sql.DB, so holding the claim transaction across it would
// deadlock a single-connection pool like the sqlite one.
func (w *Worker) processOnce(ctx context.Context) error {
	batch, err := w.claimBatch(ctx)
	if err != nil {
		return err
	}

	for _, j := range batch {
		res, err := w.merger.MergeCase(ctx, j.caseID)
		if err != nil {
			w.log.Error().Err(err).Int64("id", j.id).Str("caseId", j.caseID).Msg("merge job failed")
			if e := w.markFailed(ctx, j); e != nil {
				w.log.Error().Err(e).Int64("id", j.id).Msg("markFailed error")
			}
			continue
		}
		w.log.Info().
			Int64("id", j.id).
			Str("caseId", j.caseID).
			Int("new", res.New).
			Int("duplicates", res.Duplicates).
			Int("updated", res.Updated).
			Int("errors", res.Errors).
			Msg("merge job done")
		if e := w.markDone(ctx, j.id); e != nil {
			w.log.Error().Err(e).Int64("id", j.id).Msg("markDone error")
		}
	}

	return nil
}

// claimBatch selects due jobs and pushes their next_attempt_at past the lease
// window, all inside one short transaction. A committed claim keeps other
// workers (and the next tick) off the batch while it runs.
func (w *Worker) claimBatch(ctx context.Context) ([]job, error) {
	tx, err := w.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx, w.dialect.leaseSQL, w.dialect.ts(now), w.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	var batch []job
	for rows.Next() {
		var j job
		if err := rows.Scan(&j.id, &j.caseID, &j.attemptCount); err != nil {
			_ = rows.Close()
			return nil, err
		}
		batch = append(batch, j)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, j := range batch {
		if _, err := tx.ExecContext(ctx, w.dialect.claimSQL, w.dialect.ts(now.Add(leaseWindow)), w.dialect.ts(now), j.id); err != nil {
			return nil, err
		}
	}
	return batch, tx.Commit()
}

func (w *Worker) markDone(ctx context.Context, id int64) error {
	_, err := w.db.ExecContext(ctx, w.dialect.doneSQL, w.dialect.ts(time.Now().UTC()), id)
	return err
}

func (w *Worker) markFailed(ctx context.Context, j job) error {
	now := time.Now().UTC()
	next := now.Add(backoff(j.attemptCount + 1))
	_, err := w.db.ExecContext(ctx, w.dialect.failedSQL, w.dialect.ts(next), w.dialect.ts(now), j.id)
	return err
}

// backoff returns min(2^attempt seconds, maxBackoff).
func backoff(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt))
	d := time.Duration(secs) * time.Second
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}
