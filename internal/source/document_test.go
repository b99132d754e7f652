package source

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juriscope/juriscope-timeline/internal/model"
)

type fakeExtractions struct {
	batches []*model.DocumentExtraction
}

func (f *fakeExtractions) Put(_ context.Context, x *model.DocumentExtraction) (*model.DocumentExtraction, error) {
	f.batches = append(f.batches, x)
	return x, nil
}

func (f *fakeExtractions) ListByCase(_ context.Context, caseID string) ([]*model.DocumentExtraction, error) {
	var out []*model.DocumentExtraction
	for _, b := range f.batches {
		if b.CaseID == caseID {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestDocumentAdapter_Fetch(t *testing.T) {
	fx := &fakeExtractions{batches: []*model.DocumentExtraction{{
		ExtractionID: "x1",
		CaseID:       "c1",
		DocumentID:   "doc-1",
		Model:        "preview-v2",
		Confidence:   0.8,
		Events: []model.ExtractedEvent{
			{Date: "2025-01-10", Type: "Despacho", Description: "Processo despachado."},
			{Date: "not-a-date", Type: "Juntada", Description: "skipped"},
			{Date: "2025-01-11", Type: "Juntada", Description: "   "},
			{Date: "15/02/2025", Type: "Sentença", Description: "Sentença publicada."},
		},
	}}}

	a := NewDocumentAdapter(fx, zerolog.Nop())
	assert.Equal(t, model.SourceDocumentUpload, a.Name())

	cands, err := a.Fetch(context.Background(), &model.Case{CaseID: "c1"})
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, "Processo despachado.", cands[0].Description)
	assert.Equal(t, 0.8, cands[0].Confidence)
	assert.Equal(t, model.SourceDocumentUpload, cands[0].Source)
	assert.Equal(t, "doc-1", cands[0].Metadata["documentId"])
	assert.Equal(t, "preview-v2", cands[0].Metadata["extractionModel"])

	// dd/mm/yyyy layout
	assert.Equal(t, "2025-02-15", cands[1].EventDate.Format("2006-01-02"))
}

func TestDocumentAdapter_NoExtractions(t *testing.T) {
	a := NewDocumentAdapter(&fakeExtractions{}, zerolog.Nop())
	cands, err := a.Fetch(context.Background(), &model.Case{CaseID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, cands)
}
