package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Queue enqueues merge jobs into the merge_jobs table. Jobs are leased and
// executed by the Worker, decoupling merge triggers from merge execution.
type Queue struct {
	db      *sql.DB
	dialect dialect
}

// NewQueue builds a queue for the given driver ("postgres" or "sqlite").
func NewQueue(db *sql.DB, driver string) (*Queue, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Queue{db: db, dialect: d}, nil
}

// Enqueue schedules one merge pass for caseID, runnable immediately.
func (q *Queue) Enqueue(ctx context.Context, caseID string) (int64, error) {
	now := q.dialect.ts(time.Now().UTC())
	if q.dialect.returning {
		var id int64
		err := q.db.QueryRowContext(ctx, q.dialect.enqueueSQL, caseID, now).Scan(&id)
		return id, err
	}
	res, err := q.db.ExecContext(ctx, q.dialect.enqueueSQL, caseID, now, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// dialect carries the driver-specific SQL. Postgres selects due jobs with
// FOR UPDATE SKIP LOCKED so concurrent workers never claim the same job;
// SQLite is single-writer, a plain select suffices. The claim itself writes
// next_attempt_at past the lease window and commits before any merge runs.
type dialect struct {
	enqueueSQL string
	leaseSQL   string
	claimSQL   string
	doneSQL    string
	failedSQL  string
	returning  bool
	ts         func(time.Time) interface{}
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres":
		return dialect{
			enqueueSQL: `
                INSERT INTO merge_jobs (case_id, status, next_attempt_at, creation_time, update_time)
                VALUES ($1, 'pending', $2, $2, $2)
                RETURNING id`,
			leaseSQL: `
                SELECT id, case_id, attempt_count FROM merge_jobs
                WHERE status = 'pending' AND next_attempt_at <= $1
                ORDER BY id ASC
                FOR UPDATE SKIP LOCKED
                LIMIT $2`,
			claimSQL: `UPDATE merge_jobs SET next_attempt_at=$1, update_time=$2 WHERE id=$3`,
			doneSQL:  `UPDATE merge_jobs SET status='done', update_time=$1 WHERE id=$2`,
			failedSQL: `
                UPDATE merge_jobs
                SET attempt_count = attempt_count + 1, next_attempt_at = $1, update_time = $2
                WHERE id = $3`,
			returning: true,
			ts:        func(t time.Time) interface{} { return t },
		}, nil
	case "sqlite":
		return dialect{
			enqueueSQL: `
                INSERT INTO merge_jobs (case_id, status, next_attempt_at, creation_time, update_time)
                VALUES (?, 'pending', ?, ?, ?)`,
			leaseSQL: `
                SELECT id, case_id, attempt_count FROM merge_jobs
                WHERE status = 'pending' AND next_attempt_at <= ?
                ORDER BY id ASC
                LIMIT ?`,
			claimSQL: `UPDATE merge_jobs SET next_attempt_at=?, update_time=? WHERE id=?`,
			doneSQL:  `UPDATE merge_jobs SET status='done', update_time=? WHERE id=?`,
			failedSQL: `
                UPDATE merge_jobs
                SET attempt_count = attempt_count + 1, next_attempt_at = ?, update_time = ?
                WHERE id = ?`,
			returning: false,
			ts:        func(t time.Time) interface{} { return t.UTC().Format(time.RFC3339Nano) },
		}, nil
	}
	return dialect{}, errors.Errorf("unsupported driver %q", driver)
}
