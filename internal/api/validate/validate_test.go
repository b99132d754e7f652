package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juriscope/juriscope-timeline/internal/model"
)

func TestCaseID(t *testing.T) {
	require.NoError(t, CaseID("case-123"))
	require.NoError(t, CaseID("c1"))
	require.Error(t, CaseID(""))
	require.Error(t, CaseID("UPPER"))
	require.Error(t, CaseID("has space"))
}

func TestErrorsCarryValidationSentinel(t *testing.T) {
	require.ErrorIs(t, CaseID(""), model.ErrValidation)
	require.ErrorIs(t, CreateCase("c1", "", nil), model.ErrValidation)
	require.ErrorIs(t, ResolveRequest(nil), model.ErrValidation)
}

func TestCreateCase(t *testing.T) {
	require.NoError(t, CreateCase("c1", "0001234-56.2024.8.26.0100", nil))
	require.Error(t, CreateCase("c1", "", nil))
}

func TestCreateExtraction(t *testing.T) {
	events := []model.ExtractedEvent{{Date: "2025-01-10", Type: "Despacho", Description: "Processo despachado."}}
	require.NoError(t, CreateExtraction("doc-1", "preview-v2", 0.7, events))
	require.Error(t, CreateExtraction("", "preview-v2", 0.7, events))
	require.Error(t, CreateExtraction("doc-1", "preview-v2", 1.2, events))
	require.Error(t, CreateExtraction("doc-1", "preview-v2", 0.7, nil))
}

func TestResolveRequest(t *testing.T) {
	require.Error(t, ResolveRequest(nil))

	err := ResolveRequest([]model.Resolution{{EventID: "", Strategy: model.ResolutionMerge}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eventId")

	err = ResolveRequest([]model.Resolution{{EventID: "e1", Strategy: "delete_everything"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of")

	require.NoError(t, ResolveRequest([]model.Resolution{
		{EventID: "e1", Strategy: model.ResolutionKeepJudit},
		{EventID: "e2", Strategy: model.ResolutionKeepBoth},
	}))
}
