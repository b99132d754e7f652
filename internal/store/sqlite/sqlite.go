package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/store"
)

// New constructs a SQLite-backed store. Dates are stored as TEXT: event dates
// as "2006-01-02", timestamps as RFC 3339 in UTC, so lexical order matches
// chronological order.
func New(db *sql.DB) store.Store { return &sqStore{db: db} }

type sqStore struct{ db *sql.DB }

func (s *sqStore) Cases() store.Cases             { return &cases{db: s.db} }
func (s *sqStore) Entries() store.Entries         { return &entries{db: s.db} }
func (s *sqStore) Extractions() store.Extractions { return &extractions{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const (
	dateLayout = "2006-01-02"
	tsLayout   = time.RFC3339Nano
)

func dateStr(t time.Time) string { return t.UTC().Format(dateLayout) }
func tsStr(t time.Time) string   { return t.UTC().Format(tsLayout) }

func parseDate(s string) (time.Time, error) { return time.Parse(dateLayout, s) }

func parseTS(s string) (time.Time, error) { return time.Parse(tsLayout, s) }

func marshalJSON(m map[string]interface{}) (string, error) {
	if m == nil {
		m = map[string]interface{}{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func unmarshalMap(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func unmarshalTexts(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
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
	created := time.Now().UTC()
	res, err := c.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO cases (case_id, registry_ref, title, creation_time)
        VALUES (?,?,?,?)
    `, m.CaseID, m.RegistryRef, m.Title, tsStr(created))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("case %s already registered: %w", m.CaseID, model.ErrConflict)
	}
	out := *m
	out.CreationTime = created
	return &out, nil
}

func (c *cases) Get(ctx context.Context, caseID string) (*model.Case, error) {
	var out model.Case
	var created string
	row := c.db.QueryRowContext(ctx, `
        SELECT case_id, registry_ref, title, creation_time
        FROM cases WHERE case_id=?
    `, caseID)
	if err := row.Scan(&out.CaseID, &out.RegistryRef, &out.Title, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	var err error
	if out.CreationTime, err = parseTS(created); err != nil {
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
		var created string
		if err := rows.Scan(&m.CaseID, &m.RegistryRef, &m.Title, &created); err != nil {
			return nil, err
		}
		if m.CreationTime, err = parseTS(created); err != nil {
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
	var eventDate, created, updated string
	var conflictRaw, reviewedAt *string
	var textsRaw, metaRaw string
	if err := row.Scan(
		&e.EntryID, &e.CaseID, &e.ContentHash, &eventDate, &e.EventType, &e.Description,
		&e.NormalizedContent, &e.Source, &e.SourceID, &e.Confidence, &e.HasConflict, &conflictRaw,
		&textsRaw, &e.ReviewedBy, &reviewedAt, &e.BaseEventID, &e.RelationType, &metaRaw,
		&created, &updated,
	); err != nil {
		return nil, err
	}
	var err error
	if e.EventDate, err = parseDate(eventDate); err != nil {
		return nil, err
	}
	if e.CreationTime, err = parseTS(created); err != nil {
		return nil, err
	}
	if e.LastUpdateTime, err = parseTS(updated); err != nil {
		return nil, err
	}
	if reviewedAt != nil {
		t, err := parseTS(*reviewedAt)
		if err != nil {
			return nil, err
		}
		e.ReviewedAt = &t
	}
	if conflictRaw != nil {
		if e.ConflictDetails, err = unmarshalMap(*conflictRaw); err != nil {
			return nil, err
		}
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
	var conflictRaw *string
	if e.ConflictDetails != nil {
		b, err := json.Marshal(e.ConflictDetails)
		if err != nil {
			return nil, false, err
		}
		s := string(b)
		conflictRaw = &s
	}
	now := tsStr(time.Now().UTC())

	res, err := en.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO timeline_entries (
            entry_id, case_id, content_hash, event_date, event_type, description,
            normalized_content, source, source_id, confidence, has_conflict, conflict_details,
            original_texts, base_event_id, relation_type, metadata, creation_time, last_update_time
        ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `, id, e.CaseID, e.ContentHash, dateStr(e.EventDate), e.EventType, e.Description,
		e.NormalizedContent, e.Source, e.SourceID, e.Confidence, e.HasConflict, conflictRaw,
		string(textsRaw), e.BaseEventID, e.RelationType, metaRaw, now, now)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	out, err := en.getByHash(ctx, e.CaseID, e.ContentHash)
	if err != nil {
		return nil, false, err
	}
	return out, n == 1, nil
}

func (en *entries) getByHash(ctx context.Context, caseID, contentHash string) (*model.TimelineEntry, error) {
	row := en.db.QueryRowContext(ctx, `
        SELECT `+entryColumns+`
        FROM timeline_entries WHERE case_id=? AND content_hash=?
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
	var metaRaw string
	row := tx.QueryRowContext(ctx, `
        SELECT entry_id, confidence, metadata FROM timeline_entries
        WHERE case_id=? AND content_hash=?
    `, caseID, contentHash)
	if err := row.Scan(&entryID, &confidence, &metaRaw); err != nil {
		if err == sql.ErrNoRows {
			return false, model.ErrNotFound
		}
		return false, err
	}

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
        SET source=?, source_id=?, confidence=?, metadata=?, last_update_time=?
        WHERE entry_id=?
    `, cand.Source, cand.SourceID, cand.Confidence, newMeta, tsStr(time.Now().UTC()), entryID); err != nil {
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
	var textsRaw string
	row := tx.QueryRowContext(ctx, `
        SELECT entry_id, original_texts FROM timeline_entries
        WHERE case_id=? AND content_hash=?
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
        SET has_conflict=1, conflict_details=?, original_texts=?, last_update_time=?
        WHERE entry_id=?
    `, detailsRaw, string(newTexts), tsStr(time.Now().UTC()), entryID); err != nil {
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

	var description, metaRaw string
	row := tx.QueryRowContext(ctx, `
        SELECT description, metadata FROM timeline_entries
        WHERE case_id=? AND entry_id=?
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
        SET description=?, has_conflict=0, conflict_details=NULL,
            reviewed_by=?, reviewed_at=?, metadata=?, last_update_time=?
        WHERE case_id=? AND entry_id=?
    `, description, upd.ReviewedBy, tsStr(upd.ReviewedAt), newMeta, tsStr(time.Now().UTC()), upd.CaseID, upd.EntryID); err != nil {
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
        FROM timeline_entries WHERE case_id=? AND entry_id=?
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
        FROM timeline_entries WHERE case_id=?`
	args := []interface{}{req.CaseID}
	if req.Before != nil {
		q += " AND event_date < ?"
		args = append(args, dateStr(*req.Before))
	}
	q += " ORDER BY event_date DESC, creation_time DESC"
	if req.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, req.Limit)
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
        FROM timeline_entries WHERE case_id=? AND has_conflict=1
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
	created := time.Now().UTC()
	if _, err := x.db.ExecContext(ctx, `
        INSERT INTO document_extractions (extraction_id, case_id, document_id, model, confidence, events, creation_time)
        VALUES (?,?,?,?,?,?,?)
    `, id, m.CaseID, m.DocumentID, m.Model, m.Confidence, string(eventsRaw), tsStr(created)); err != nil {
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
        FROM document_extractions WHERE case_id=? ORDER BY creation_time ASC
    `, caseID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.DocumentExtraction
	for rows.Next() {
		var m model.DocumentExtraction
		var eventsRaw, created string
		if err := rows.Scan(&m.ExtractionID, &m.CaseID, &m.DocumentID, &m.Model, &m.Confidence, &eventsRaw, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(eventsRaw), &m.Events); err != nil {
			return nil, err
		}
		if m.CreationTime, err = parseTS(created); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}
