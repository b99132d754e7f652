package model

import "time"

// Source identifies the origin of a timeline entry or candidate event.
type Source string

const (
	SourceDocumentUpload Source = "DOCUMENT_UPLOAD"
	SourceAPIRegistry    Source = "API_REGISTRY"
	SourceManualEntry    Source = "MANUAL_ENTRY"
)

// RelationRelated marks entries created by a keep-both resolution.
const RelationRelated = "RELATED"

// Case is a monitored legal case. RegistryRef is the identifier used to look the
// case up in the official court-registry API (e.g. the CNJ process number).
type Case struct {
	CaseID       string    `json:"caseId"`
	RegistryRef  string    `json:"registryRef"`
	Title        *string   `json:"title,omitempty"`
	CreationTime time.Time `json:"creationTime"`
}

// TimelineEntry is one row of a case's unified timeline. (CaseID, ContentHash) is
// unique within the store; that constraint is the only deduplication guarantee.
type TimelineEntry struct {
	EntryID           string                 `json:"entryId"`
	CaseID            string                 `json:"caseId"`
	ContentHash       string                 `json:"contentHash"`
	EventDate         time.Time              `json:"eventDate"`
	EventType         string                 `json:"eventType"`
	Description       string                 `json:"description"`
	NormalizedContent string                 `json:"normalizedContent"`
	Source            Source                 `json:"source"`
	SourceID          *string                `json:"sourceId,omitempty"`
	Confidence        float64                `json:"confidence"`
	HasConflict       bool                   `json:"hasConflict"`
	ConflictDetails   map[string]interface{} `json:"conflictDetails,omitempty"`
	OriginalTexts     map[string]string      `json:"originalTexts,omitempty"`
	ReviewedBy        *string                `json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time             `json:"reviewedAt,omitempty"`
	BaseEventID       *string                `json:"baseEventId,omitempty"`
	RelationType      *string                `json:"relationType,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	CreationTime      time.Time              `json:"creationTime"`
	LastUpdateTime    time.Time              `json:"lastUpdateTime"`
}

// Candidate is a proposed timeline event from one source adapter, not yet
// deduplicated against the persisted timeline.
type Candidate struct {
	EventDate   time.Time
	EventType   string
	Description string
	Source      Source
	SourceID    *string
	Confidence  float64
	Metadata    map[string]interface{}
}

// DocumentExtraction is a persisted AI preview-extraction snapshot for one
// uploaded document. Confidence applies to the whole batch of events.
type DocumentExtraction struct {
	ExtractionID string           `json:"extractionId"`
	CaseID       string           `json:"caseId"`
	DocumentID   string           `json:"documentId"`
	Model        string           `json:"model"`
	Confidence   float64          `json:"confidence"`
	Events       []ExtractedEvent `json:"events"`
	CreationTime time.Time        `json:"creationTime"`
}

// ExtractedEvent is the raw event shape produced by the preview extractor.
type ExtractedEvent struct {
	Date        string `json:"date"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// MergeResult aggregates the outcome of one MergeCase invocation. Total counts
// candidates that were classified successfully, not rows in the table.
type MergeResult struct {
	Total      int `json:"total"`
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
	Updated    int `json:"updated"`
	Errors     int `json:"errors"`
}

// ResolutionStrategy is one of the four user-chosen conflict resolution actions.
type ResolutionStrategy string

const (
	ResolutionKeepJudit   ResolutionStrategy = "keep_judit"
	ResolutionUseDocument ResolutionStrategy = "use_document"
	ResolutionMerge       ResolutionStrategy = "merge"
	ResolutionKeepBoth    ResolutionStrategy = "keep_both"
)

// Valid reports whether s is a known strategy.
func (s ResolutionStrategy) Valid() bool {
	switch s {
	case ResolutionKeepJudit, ResolutionUseDocument, ResolutionMerge, ResolutionKeepBoth:
		return true
	}
	return false
}

// Resolution is one user-submitted conflict resolution item.
type Resolution struct {
	EventID           string             `json:"eventId"`
	Strategy          ResolutionStrategy `json:"resolution"`
	MergedDescription *string            `json:"mergedDescription,omitempty"`
}

// ResolutionResult reports the outcome of one resolution item.
type ResolutionResult struct {
	EventID    string             `json:"eventId"`
	Status     string             `json:"status"` // "resolved" or "error"
	Resolution ResolutionStrategy `json:"resolution,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// ResolveReport aggregates a resolution batch. Results holds one record per
// input item, in input order.
type ResolveReport struct {
	Resolved int                `json:"resolved"`
	Errors   int                `json:"errors"`
	Results  []ResolutionResult `json:"results"`
}

// ListEntriesRequest captures filters used when listing timeline entries.
type ListEntriesRequest struct {
	CaseID string
	Limit  int
	Before *time.Time
}
