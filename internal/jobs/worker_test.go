package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/services"
	"github.com/juriscope/juriscope-timeline/internal/source"
	"github.com/juriscope/juriscope-timeline/internal/store/sqlite"
)

type fakeMerger struct {
	calls []string
	fail  map[string]bool
}

func (m *fakeMerger) MergeCase(_ context.Context, caseID string) (*model.MergeResult, error) {
	m.calls = append(m.calls, caseID)
	if m.fail[caseID] {
		return nil, errors.New("merge blew up")
	}
	return &model.MergeResult{Total: 1, New: 1}, nil
}

func setup(t *testing.T) (*Queue, *Worker, *fakeMerger) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// merge_jobs has a FK on cases
	_, err = db.Exec(`INSERT INTO cases (case_id, registry_ref, creation_time) VALUES ('c1','ref','2025-01-01T00:00:00Z'), ('c2','ref','2025-01-01T00:00:00Z')`)
	require.NoError(t, err)

	q, err := NewQueue(db, "sqlite")
	require.NoError(t, err)
	m := &fakeMerger{fail: map[string]bool{}}
	w, err := NewWorker(db, "sqlite", m, Config{BatchSize: 10, Interval: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	return q, w, m
}

func TestWorker_ProcessesPendingJobs(t *testing.T) {
	q, w, m := setup(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "c1")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "c2")
	require.NoError(t, err)
	assert.Greater(t, id1, int64(0))

	require.NoError(t, w.processOnce(ctx))
	assert.Equal(t, []string{"c1", "c2"}, m.calls)

	var done int
	require.NoError(t, w.db.QueryRow(`SELECT COUNT(*) FROM merge_jobs WHERE status='done'`).Scan(&done))
	assert.Equal(t, 2, done)

	// Nothing left to lease.
	require.NoError(t, w.processOnce(ctx))
	assert.Len(t, m.calls, 2)
}

func TestWorker_FailedJobBacksOff(t *testing.T) {
	q, w, m := setup(t)
	m.fail["c1"] = true
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, w.processOnce(ctx))
	require.Len(t, m.calls, 1)

	var status string
	var attempts int
	var nextAt string
	require.NoError(t, w.db.QueryRow(`SELECT status, attempt_count, next_attempt_at FROM merge_jobs`).Scan(&status, &attempts, &nextAt))
	assert.Equal(t, "pending", status)
	assert.Equal(t, 1, attempts)

	next, err := time.Parse(time.RFC3339Nano, nextAt)
	require.NoError(t, err)
	assert.True(t, next.After(time.Now().UTC()), "next attempt must be in the future")

	// Backed-off job is not leased again yet.
	require.NoError(t, w.processOnce(ctx))
	assert.Len(t, m.calls, 1)
}

type fixedAdapter struct{ cands []model.Candidate }

func (a *fixedAdapter) Name() model.Source { return model.SourceDocumentUpload }
func (a *fixedAdapter) Fetch(context.Context, *model.Case) ([]model.Candidate, error) {
	return a.cands, nil
}

// Worker and merge service share one *sql.DB, and the sqlite pool has a
// single connection. The claim must commit before the merge runs, or the
// merge's store queries starve waiting for the connection the claim holds.
func TestWorker_RunsMergeServiceOnSharedHandle(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := sqlite.New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = st.Cases().Create(ctx, &model.Case{CaseID: "c1", RegistryRef: "0001234-56.2024.8.26.0100"})
	require.NoError(t, err)

	adapter := &fixedAdapter{cands: []model.Candidate{{
		EventDate:   time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		EventType:   "Despacho",
		Description: "Processo despachado.",
		Source:      model.SourceDocumentUpload,
		Confidence:  0.8,
	}}}
	merger := services.NewMergeService(st, []source.Adapter{adapter}, zerolog.Nop())

	q, err := NewQueue(db, "sqlite")
	require.NoError(t, err)
	w, err := NewWorker(db, "sqlite", merger, Config{BatchSize: 5, Interval: time.Second}, zerolog.Nop())
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, w.processOnce(ctx))

	var done int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM merge_jobs WHERE status='done'`).Scan(&done))
	assert.Equal(t, 1, done)

	entries, err := st.Entries().List(ctx, model.ListEntriesRequest{CaseID: "c1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Processo despachado.", entries[0].Description)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 8*time.Second, backoff(3))
	assert.Equal(t, maxBackoff, backoff(9))
	assert.Equal(t, maxBackoff, backoff(100))
}
