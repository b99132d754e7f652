package store

import (
	"context"
	"time"

	"github.com/juriscope/juriscope-timeline/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Cases() Cases
	Entries() Entries
	Extractions() Extractions
}

type Cases interface {
	Create(ctx context.Context, c *model.Case) (*model.Case, error)
	Get(ctx context.Context, caseID string) (*model.Case, error)
	List(ctx context.Context) ([]*model.Case, error)
}

// Entries persists the unified timeline. The (case_id, content_hash) unique
// constraint is the only concurrency-control primitive; Upsert must be atomic
// (insert-or-fetch), never read-then-write.
type Entries interface {
	// Upsert inserts e when no entry with (CaseID, ContentHash) exists, and
	// otherwise returns the stored row untouched. created reports which happened.
	Upsert(ctx context.Context, e *model.TimelineEntry) (*model.TimelineEntry, bool, error)

	// Promote raises source attribution on an existing entry when the candidate
	// confidence is strictly greater than the stored one: confidence, source and
	// sourceId are replaced and candidate metadata is shallow-merged into the
	// stored metadata (existing keys preserved). The description is untouched.
	// Returns false without mutating when the gate does not pass.
	Promote(ctx context.Context, caseID, contentHash string, cand model.Candidate) (bool, error)

	// RecordVariant stores a differing raw description under originalTexts[source]
	// and flags the entry for manual resolution. Confidence, source and
	// description are not modified.
	RecordVariant(ctx context.Context, caseID, contentHash string, source model.Source, text string, details map[string]interface{}) error

	// ApplyResolution finalizes one conflict resolution: optionally replaces the
	// description, clears has_conflict/conflict_details, stamps reviewer fields
	// and appends the audit record to metadata, all in one transaction.
	ApplyResolution(ctx context.Context, upd ResolutionUpdate) (*model.TimelineEntry, error)

	GetByID(ctx context.Context, caseID, entryID string) (*model.TimelineEntry, error)
	List(ctx context.Context, req model.ListEntriesRequest) ([]*model.TimelineEntry, error)
	ListConflicts(ctx context.Context, caseID string) ([]*model.TimelineEntry, error)
}

// ResolutionUpdate carries the persisted effect of one resolution item.
type ResolutionUpdate struct {
	CaseID      string
	EntryID     string
	Description *string // nil keeps the current description
	ReviewedBy  string
	ReviewedAt  time.Time
	// Audit is appended to the metadata "resolutionAudit" list; prior metadata
	// keys are always preserved.
	Audit map[string]interface{}
}

type Extractions interface {
	Put(ctx context.Context, x *model.DocumentExtraction) (*model.DocumentExtraction, error)
	ListByCase(ctx context.Context, caseID string) ([]*model.DocumentExtraction, error)
}
