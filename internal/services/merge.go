package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/juriscope/juriscope-timeline/internal/contenthash"
	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/normalize"
	"github.com/juriscope/juriscope-timeline/internal/source"
	"github.com/juriscope/juriscope-timeline/internal/store"
)

var errNormalizedEmpty = errors.New("description normalizes to empty")

// MergeService folds candidate events from every source adapter into a case's
// unified timeline. All deduplication rests on the (case_id, content_hash)
// unique constraint; the service never reads before inserting.
type MergeService struct {
	store    store.Store
	adapters []source.Adapter
	log      zerolog.Logger
}

func NewMergeService(s store.Store, adapters []source.Adapter, log zerolog.Logger) *MergeService {
	return &MergeService{store: s, adapters: adapters, log: log}
}

// MergeCase runs one merge pass for caseID. A failing source adapter is
// skipped (counted as one error) so the remaining sources still merge; a
// failing candidate is skipped the same way. Re-running with unchanged
// sources yields identical counts and no new rows.
func (s *MergeService) MergeCase(ctx context.Context, caseID string) (*model.MergeResult, error) {
	c, err := s.store.Cases().Get(ctx, caseID)
	if err != nil {
		return nil, err
	}

	res := &model.MergeResult{}
	for _, a := range s.adapters {
		cands, err := a.Fetch(ctx, c)
		if err != nil {
			s.log.Error().Stack().
				Str("caseId", caseID).
				Str("source", string(a.Name())).
				Err(err).
				Msg("source adapter failed, skipping")
			res.Errors++
			continue
		}
		for _, cand := range cands {
			if err := s.mergeCandidate(ctx, caseID, cand, res); err != nil {
				s.log.Error().Stack().
					Str("caseId", caseID).
					Str("source", string(cand.Source)).
					Err(err).
					Msg("candidate merge failed, skipping")
				res.Errors++
			}
		}
	}

	s.log.Info().
		Str("caseId", caseID).
		Int("total", res.Total).
		Int("new", res.New).
		Int("duplicates", res.Duplicates).
		Int("updated", res.Updated).
		Int("errors", res.Errors).
		Msg("merge pass complete")
	return res, nil
}

func (s *MergeService) mergeCandidate(ctx context.Context, caseID string, cand model.Candidate, res *model.MergeResult) error {
	normalized := normalize.Description(cand.Description)
	if normalized == "" {
		return errNormalizedEmpty
	}
	hash := contenthash.Event(cand.EventDate, normalized)

	entry := &model.TimelineEntry{
		CaseID:            caseID,
		ContentHash:       hash,
		EventDate:         cand.EventDate,
		EventType:         cand.EventType,
		Description:       cand.Description,
		NormalizedContent: normalized,
		Source:            cand.Source,
		SourceID:          cand.SourceID,
		Confidence:        cand.Confidence,
		OriginalTexts:     map[string]string{string(cand.Source): cand.Description},
		Metadata:          cand.Metadata,
	}

	existing, created, err := s.store.Entries().Upsert(ctx, entry)
	if err != nil {
		return err
	}
	if created {
		res.Total++
		res.New++
		return nil
	}

	// Hash hit. A differing raw text from another source is a conflict the
	// reviewer must settle; already-recorded variants are not re-flagged, so
	// resolved entries stay resolved across merge re-runs.
	if cand.Description != existing.Description &&
		cand.Source != existing.Source &&
		existing.OriginalTexts[string(cand.Source)] != cand.Description {
		details := map[string]interface{}{
			"reason":          "description_mismatch",
			"existingSource":  string(existing.Source),
			"candidateSource": string(cand.Source),
		}
		if err := s.store.Entries().RecordVariant(ctx, caseID, hash, cand.Source, cand.Description, details); err != nil {
			return err
		}
	}

	// Strictly-greater confidence re-attributes the entry; ties keep the
	// stored attribution (first writer wins).
	promoted := false
	if cand.Confidence > existing.Confidence {
		promoted, err = s.store.Entries().Promote(ctx, caseID, hash, cand)
		if err != nil {
			return err
		}
	}

	res.Total++
	if promoted {
		res.Updated++
	} else {
		res.Duplicates++
	}
	return nil
}
