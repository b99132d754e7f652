package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Cases() store.Cases             { return &cases{db: s.db} }
func (s *pgStore) Entries() store.Entries         { return &entries{db: s.db} }
func (s *pgStore) Extractions() store.Extractions { return &extractions{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Bootstrap performs a connectivity check to ensure Postgres is reachable.
// Schema setup is handled by migrations, not here.
func Bootstrap(ctx context.Context, dsn string) error {
	if dsn == "" {
		return nil
	}
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.PingContext(ctx)
}

func marshalJSON(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		m = map[string]interface{}{}
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func unmarshalTexts(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// --- Cases ---
type cases struct{ db *sql.DB }

func (c *cases) Create(ctx context.Context, m *model.Case) (*model.Case, error) {
	var created time.Time
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO cases (case_id, registry_ref, title)
        VALUES ($1,$2,$3)
        ON CONFLICT (case_id) DO NOTHING
        RETURNING creation_time
    `, m.CaseID, m.RegistryRef, m.Title)
	if err := row.Scan(&created); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("case %s already registered: %w", m.CaseID, model.ErrConflict)
		}
		return nil, err
	}
	out := *m
	out.CreationTime = created
	return &out, nil
}

func (c *cases) Get(ctx context.Context, caseID string) (*model.Case, error) {
	var out model.Case
	row := c.db.QueryRowContext(ctx, `
        SELECT case_id, registry_ref, title, creation_time
        FROM cases WHERE case_id=$1
    `, caseID)
	if err := row.Scan(&out.CaseID, &out.RegistryRef, &out.Title, &out.CreationTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (c *cases) List(ctx context.Context) ([]*model.Case, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT case_id, registry_ref, title, creation_time
        FROM cases ORDER BY creation_time DESC
    `)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Case
	for rows.Next() {
		var m model.Case
		if err := rows.Scan(&m.CaseID, &m.RegistryRef, &m.Title, &m.CreationTime); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}

// --- Entries ---
type entries struct{ db *sql.DB }

const entryColumns = `entry_id, case_id, content_hash, event_date, event_type, description,
        normalized_content, source, source_id, confidence, has_conflict, conflict_details,
        original_texts, reviewed_by, reviewed_at, base_event_id, relation_type, metadata,
        creation_time, last_update_time`

func scanEntry(row interface{ Scan(...interface{}) error }) (*model.TimelineEntry, error) {
	var e model.TimelineEntry
	var conflictRaw, textsRaw, metaRaw []byte
	if err := row.Scan(
		&e.EntryID, &e.CaseID, &e.ContentHash, &e.EventDate, &e.EventType, &e.Description,
		&e.NormalizedContent, &e.Source, &e.SourceID, &e.Confidence, &e.HasConflict, &conflictRaw,
		&textsRaw, &e.ReviewedBy, &e.ReviewedAt, &e.BaseEventID, &e.RelationType, &metaRaw,
		&e.CreationTime, &e.LastUpdateTime,
	); err != nil {
		return nil, err
	}
	var err error
	if e.ConflictDetails, err = unmarshalMap(conflictRaw); err != nil {
		return nil, err
	}
	if e.OriginalTexts, err = unmarshalTexts(textsRaw); err != nil {
		return nil, err
	}
	if e.Metadata, err = unmarshalMap(metaRaw); err != nil {
		return nil, err
	}
	return &e, nil
}

func (en *entries) Upsert(ctx context.Context, e *model.TimelineEntry) (*model.TimelineEntry, bool, error) {
	id := e.EntryID
	if id == "" {
		id = uuid.New().String()
	}
	texts := e.OriginalTexts
	if texts == nil {
		texts = map[string]string{}
	}
	textsRaw, err := json.Marshal(texts)
	if err != nil {
		return nil, false, err
	}
	metaRaw, err := marshalJSON(e.Metadata)
	if err != nil {
		return nil, false, err
	}
	var conflictRaw interface{}
	if e.ConflictDetails != nil {
		b, err := json.Marshal(e.ConflictDetails)
		if err != nil {
			return nil, false, err
		}
		conflictRaw = b
	}

	// Insert-or-nothing on (case_id, content_hash); the unique constraint is
	// the only race arbiter. On conflict, fall through to a plain read of the
	// winning row.
	row := en.db.QueryRowContext(ctx, `
        INSERT INTO timeline_entries (
            entry_id, case_id, content_hash, event_date, event_type, description,
            normalized_content, source, source_id, confidence, has_conflict, conflict_details,
            original_texts, base_event_id, relation_type, metadata
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        ON CONFLICT (case_id, content_hash) DO NOTHING
        RETURNING `+entryColumns+`
    `, id, e.CaseID, e.ContentHash, e.EventDate, e.EventType, e.Description,
		e.NormalizedContent, e.Source, e.SourceID, e.Confidence, e.HasConflict, conflictRaw,
		textsRaw, e.BaseEventID, e.RelationType, metaRaw)

	out, err := scanEntry(row)
	if err == nil {
		return out, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	existing, err := en.getByHash(ctx, en.db, e.CaseID, e.ContentHash)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (en *entries) getByHash(ctx context.Context, q queryer, caseID, contentHash string) (*model.TimelineEntry, error) {
	row := q.QueryRowContext(ctx, `
        SELECT `+entryColumns+`
        FROM timeline_entries WHERE case_id=$1 AND content_hash=$2
    `, caseID, contentHash)
	out, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	return out, err
}

func (en *entries) Promote(ctx context.Context, caseID, contentHash string, cand model.Candidate) (bool, error) {
	tx, err := en.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var entryID string
	var confidence float64
	var metaRaw []byte
	row := tx.QueryRowContext(ctx, `
        SELECT entry_id, confidence, metadata FROM timeline_entries
        WHERE case_id=$1 AND content_hash=$2 FOR UPDATE
    `, caseID, contentHash)
	if err := row.Scan(&entryID, &confidence, &metaRaw); err != nil {
		if err == sql.ErrNoRows {
			return false, model.ErrNotFound
		}
		return false, err
	}

	// Strict inequality: on a tie the stored attribution wins.
	if !(cand.Confidence > confidence) {
		return false, nil
	}

	meta, err := unmarshalMap(metaRaw)
	if err != nil {
		return false, err
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	for k, v := range cand.Metadata {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	newMeta, err := marshalJSON(meta)
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE timeline_entries
        SET source=$1, source_id=$2, confidence=$3, metadata=$4, last_update_time=now()
        WHERE entry_id=$5
    `, cand.Source, cand.SourceID, cand.Confidence, newMeta, entryID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (en *entries) RecordVariant(ctx context.Context, caseID, contentHash string, source model.Source, text string, details map[string]interface{}) error {
	tx, err := en.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var entryID string
	var textsRaw []byte
	row := tx.QueryRowContext(ctx, `
        SELECT entry_id, original_texts FROM timeline_entries
        WHERE case_id=$1 AND content_hash=$2 FOR UPDATE
    `, caseID, contentHash)
	if err := row.Scan(&entryID, &textsRaw); err != nil {
		if err == sql.ErrNoRows {
			return model.ErrNotFound
		}
		return err
	}

	texts, err := unmarshalTexts(textsRaw)
	if err != nil {
		return err
	}
	if texts == nil {
		texts = map[string]string{}
	}
	texts[string(source)] = text
	newTexts, err := json.Marshal(texts)
	if err != nil {
		return err
	}
	detailsRaw, err := marshalJSON(details)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE timeline_entries
        SET has_conflict=TRUE, conflict_details=$1, original_texts=$2, last_update_time=now()
        WHERE entry_id=$3
    `, detailsRaw, newTexts, entryID); err != nil {
		return err
	}
	return tx.Commit()
}

func (en *entries) ApplyResolution(ctx context.Context, upd store.ResolutionUpdate) (*model.TimelineEntry, error) {
	tx, err := en.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var description string
	var metaRaw []byte
	row := tx.QueryRowContext(ctx, `
        SELECT description, metadata FROM timeline_entries
        WHERE case_id=$1 AND entry_id=$2 FOR UPDATE
    `, upd.CaseID, upd.EntryID)
	if err := row.Scan(&description, &metaRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	meta, err := unmarshalMap(metaRaw)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	if upd.Audit != nil {
		var audit []interface{}
		if prev, ok := meta["resolutionAudit"].([]interface{}); ok {
			audit = prev
		}
		meta["resolutionAudit"] = append(audit, upd.Audit)
	}
	newMeta, err := marshalJSON(meta)
	if err != nil {
		return nil, err
	}

	if upd.Description != nil {
		description = *upd.Description
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE timeline_entries
        SET description=$1, has_conflict=FALSE, conflict_details=NULL,
            reviewed_by=$2, reviewed_at=$3, metadata=$4, last_update_time=now()
        WHERE case_id=$5 AND entry_id=$6
    `, description, upd.ReviewedBy, upd.ReviewedAt, newMeta, upd.CaseID, upd.EntryID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return en.GetByID(ctx, upd.CaseID, upd.EntryID)
}

func (en *entries) GetByID(ctx context.Context, caseID, entryID string) (*model.TimelineEntry, error) {
	row := en.db.QueryRowContext(ctx, `
        SELECT `+entryColumns+`
        FROM timeline_entries WHERE case_id=$1 AND entry_id=$2
    `, caseID, entryID)
	out, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	return out, err
}

func (en *entries) List(ctx context.Context, req model.ListEntriesRequest) ([]*model.TimelineEntry, error) {
	q := `
        SELECT ` + entryColumns + `
        FROM timeline_entries WHERE case_id=$1`
	args := []interface{}{req.CaseID}
	if req.Before != nil {
		args = append(args, *req.Before)
		q += fmt.Sprintf(" AND event_date < $%d", len(args))
	}
	q += " ORDER BY event_date DESC, creation_time DESC"
	if req.Limit > 0 {
		args = append(args, req.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := en.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.TimelineEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (en *entries) ListConflicts(ctx context.Context, caseID string) ([]*model.TimelineEntry, error) {
	rows, err := en.db.QueryContext(ctx, `
        SELECT `+entryColumns+`
        FROM timeline_entries WHERE case_id=$1 AND has_conflict
        ORDER BY event_date DESC, creation_time DESC
    `, caseID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.TimelineEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- Extractions ---
type extractions struct{ db *sql.DB }

func (x *extractions) Put(ctx context.Context, m *model.DocumentExtraction) (*model.DocumentExtraction, error) {
	id := m.ExtractionID
	if id == "" {
		id = uuid.New().String()
	}
	eventsRaw, err := json.Marshal(m.Events)
	if err != nil {
		return nil, err
	}
	var created time.Time
	row := x.db.QueryRowContext(ctx, `
        INSERT INTO document_extractions (extraction_id, case_id, document_id, model, confidence, events)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING creation_time
    `, id, m.CaseID, m.DocumentID, m.Model, m.Confidence, eventsRaw)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *m
	out.ExtractionID = id
	out.CreationTime = created
	return &out, nil
}

func (x *extractions) ListByCase(ctx context.Context, caseID string) ([]*model.DocumentExtraction, error) {
	rows, err := x.db.QueryContext(ctx, `
        SELECT extraction_id, case_id, document_id, model, confidence, events, creation_time
        FROM document_extractions WHERE case_id=$1 ORDER BY creation_time ASC
    `, caseID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.DocumentExtraction
	for rows.Next() {
		var m model.DocumentExtraction
		var eventsRaw []byte
		if err := rows.Scan(&m.ExtractionID, &m.CaseID, &m.DocumentID, &m.Model, &m.Confidence, &eventsRaw, &m.CreationTime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(eventsRaw, &m.Events); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}
