package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/juriscope/juriscope-timeline/internal/contenthash"
	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/store"
)

// ConflictService applies reviewer decisions to flagged timeline entries.
type ConflictService struct {
	store store.Store
	log   zerolog.Logger
}

func NewConflictService(s store.Store, log zerolog.Logger) *ConflictService {
	return &ConflictService{store: s, log: log}
}

// ResolveBatch applies a batch of resolutions one at a time. A failing item
// never aborts the batch: its error is recorded in the report and processing
// continues with the next item, in input order.
func (s *ConflictService) ResolveBatch(ctx context.Context, caseID, reviewedBy string, items []model.Resolution) (*model.ResolveReport, error) {
	if _, err := s.store.Cases().Get(ctx, caseID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	report := &model.ResolveReport{}
	for _, item := range items {
		if err := s.resolveOne(ctx, caseID, reviewedBy, now, item); err != nil {
			s.log.Warn().
				Str("caseId", caseID).
				Str("eventId", item.EventID).
				Str("resolution", string(item.Strategy)).
				Err(err).
				Msg("resolution item failed")
			report.Errors++
			report.Results = append(report.Results, model.ResolutionResult{
				EventID: item.EventID,
				Status:  "error",
				Error:   err.Error(),
			})
			continue
		}
		report.Resolved++
		report.Results = append(report.Results, model.ResolutionResult{
			EventID:    item.EventID,
			Status:     "resolved",
			Resolution: item.Strategy,
		})
	}
	return report, nil
}

func (s *ConflictService) resolveOne(ctx context.Context, caseID, reviewedBy string, now time.Time, item model.Resolution) error {
	entry, err := s.store.Entries().GetByID(ctx, caseID, item.EventID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return errors.Errorf("event %s not found", item.EventID)
		}
		return err
	}
	if !entry.HasConflict {
		return errors.Errorf("event %s has no pending conflict", item.EventID)
	}

	var description *string
	switch item.Strategy {
	case model.ResolutionKeepJudit:
		// Keep the authoritative text already on the entry.
	case model.ResolutionUseDocument:
		d := documentText(entry)
		description = &d
	case model.ResolutionMerge:
		// Absent or blank text is a content no-op; the conflict is still
		// cleared and audited below.
		if item.MergedDescription != nil && strings.TrimSpace(*item.MergedDescription) != "" {
			description = item.MergedDescription
		}
	case model.ResolutionKeepBoth:
		if err := s.createCompanion(ctx, entry); err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown resolution %q", item.Strategy)
	}

	audit := map[string]interface{}{
		"timestamp":  now.Format(time.RFC3339),
		"resolution": string(item.Strategy),
		"resolvedBy": reviewedBy,
	}
	_, err = s.store.Entries().ApplyResolution(ctx, store.ResolutionUpdate{
		CaseID:      caseID,
		EntryID:     item.EventID,
		Description: description,
		ReviewedBy:  reviewedBy,
		ReviewedAt:  now,
		Audit:       audit,
	})
	return err
}

// createCompanion inserts the keep-both twin: a manual entry linked back to
// the original, carrying the non-authoritative text. Its content hash is
// derived from the original's identity, so it can never collide with a
// source-produced hash and repeating the resolution is a no-op upsert.
func (s *ConflictService) createCompanion(ctx context.Context, base *model.TimelineEntry) error {
	relation := model.RelationRelated
	baseID := base.EntryID
	companion := &model.TimelineEntry{
		CaseID:            base.CaseID,
		ContentHash:       contenthash.Derived(base.EntryID, base.ContentHash),
		EventDate:         base.EventDate,
		EventType:         base.EventType,
		Description:       documentText(base),
		NormalizedContent: base.NormalizedContent,
		Source:            model.SourceManualEntry,
		Confidence:        base.Confidence,
		OriginalTexts:     base.OriginalTexts,
		BaseEventID:       &baseID,
		RelationType:      &relation,
		Metadata:          base.Metadata,
	}
	_, _, err := s.store.Entries().Upsert(ctx, companion)
	return err
}

// documentText selects the non-authoritative wording recorded on an entry:
// every originalTexts variant except the registry's, in stable key order.
// Falls back to the current description when nothing qualifies.
func documentText(entry *model.TimelineEntry) string {
	keys := make([]string, 0, len(entry.OriginalTexts))
	for k := range entry.OriginalTexts {
		if k == string(model.SourceAPIRegistry) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if t := strings.TrimSpace(entry.OriginalTexts[k]); t != "" && t != entry.Description {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return entry.Description
	}
	return strings.Join(parts, " | ")
}
