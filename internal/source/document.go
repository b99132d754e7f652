package source

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/store"
)

// DocumentAdapter surfaces AI preview-extraction events stored for a case.
// The per-extraction confidence is carried onto every candidate it yields.
type DocumentAdapter struct {
	extractions store.Extractions
	log         zerolog.Logger
}

func NewDocumentAdapter(extractions store.Extractions, log zerolog.Logger) *DocumentAdapter {
	return &DocumentAdapter{extractions: extractions, log: log}
}

func (a *DocumentAdapter) Name() model.Source { return model.SourceDocumentUpload }

func (a *DocumentAdapter) Fetch(ctx context.Context, c *model.Case) ([]model.Candidate, error) {
	batches, err := a.extractions.ListByCase(ctx, c.CaseID)
	if err != nil {
		return nil, err
	}

	var out []model.Candidate
	for _, b := range batches {
		for _, ev := range b.Events {
			if strings.TrimSpace(ev.Description) == "" {
				a.log.Warn().
					Str("caseId", c.CaseID).
					Str("extractionId", b.ExtractionID).
					Msg("skipping extracted event with empty description")
				continue
			}
			date, err := parseEventDate(ev.Date)
			if err != nil {
				a.log.Warn().
					Str("caseId", c.CaseID).
					Str("extractionId", b.ExtractionID).
					Str("date", ev.Date).
					Msg("skipping extracted event with unparseable date")
				continue
			}
			extractionID := b.ExtractionID
			out = append(out, model.Candidate{
				EventDate:   date,
				EventType:   ev.Type,
				Description: ev.Description,
				Source:      model.SourceDocumentUpload,
				SourceID:    &extractionID,
				Confidence:  b.Confidence,
				Metadata: map[string]interface{}{
					"documentId":      b.DocumentID,
					"extractionModel": b.Model,
				},
			})
		}
	}
	return out, nil
}
