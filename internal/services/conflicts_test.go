package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/store"
)

// seedConflict inserts one registry-attributed entry flagged with a document
// variant, mirroring what a merge pass leaves behind.
func seedConflict(t *testing.T, s store.Store, caseID string) *model.TimelineEntry {
	t.Helper()
	ctx := context.Background()
	entry := &model.TimelineEntry{
		CaseID:            caseID,
		ContentHash:       "hash-conflict",
		EventDate:         day(2025, 1, 10),
		EventType:         "Despacho",
		Description:       "Processo despachado.",
		NormalizedContent: "processo despachado",
		Source:            model.SourceAPIRegistry,
		Confidence:        1.0,
		OriginalTexts:     map[string]string{string(model.SourceAPIRegistry): "Processo despachado."},
	}
	created, _, err := s.Entries().Upsert(ctx, entry)
	require.NoError(t, err)
	err = s.Entries().RecordVariant(ctx, caseID, "hash-conflict", model.SourceDocumentUpload,
		"Despacho proferido pelo juiz.", map[string]interface{}{"reason": "description_mismatch"})
	require.NoError(t, err)
	got, err := s.Entries().GetByID(ctx, caseID, created.EntryID)
	require.NoError(t, err)
	return got
}

func TestResolveBatch_KeepJudit(t *testing.T) {
	s := newTestStore(t)
	caseID := newTestCase(t, s)
	entry := seedConflict(t, s, caseID)
	svc := NewConflictService(s, zerolog.Nop())

	report, err := svc.ResolveBatch(context.Background(), caseID, "ana@lawfirm.test", []model.Resolution{
		{EventID: entry.EntryID, Strategy: model.ResolutionKeepJudit},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 0, report.Errors)

	got, err := s.Entries().GetByID(context.Background(), caseID, entry.EntryID)
	require.NoError(t, err)
	assert.False(t, got.HasConflict)
	assert.Nil(t, got.ConflictDetails)
	assert.Equal(t, "Processo despachado.", got.Description)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, "ana@lawfirm.test", *got.ReviewedBy)
	assert.NotNil(t, got.ReviewedAt)

	audit, ok := got.Metadata["resolutionAudit"].([]interface{})
	require.True(t, ok)
	require.Len(t, audit, 1)
	rec := audit[0].(map[string]interface{})
	assert.Equal(t, "keep_judit", rec["resolution"])
	assert.Equal(t, "ana@lawfirm.test", rec["resolvedBy"])
}

func TestResolveBatch_UseDocument(t *testing.T) {
	s := newTestStore(t)
	caseID := newTestCase(t, s)
	entry := seedConflict(t, s, caseID)
	svc := NewConflictService(s, zerolog.Nop())

	report, err := svc.ResolveBatch(context.Background(), caseID, "ana", []model.Resolution{
		{EventID: entry.EntryID, Strategy: model.ResolutionUseDocument},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)

	got, err := s.Entries().GetByID(context.Background(), caseID, entry.EntryID)
	require.NoError(t, err)
	assert.False(t, got.HasConflict)
	assert.Equal(t, "Despacho proferido pelo juiz.", got.Description)
	// Source attribution is untouched by resolution.
	assert.Equal(t, model.SourceAPIRegistry, got.Source)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestResolveBatch_Merge(t *testing.T) {
	s := newTestStore(t)
	caseID := newTestCase(t, s)
	entry := seedConflict(t, s, caseID)
	svc := NewConflictService(s, zerolog.Nop())

	merged := "Processo despachado; despacho proferido pelo juiz."
	report, err := svc.ResolveBatch(context.Background(), caseID, "ana", []model.Resolution{
		{EventID: entry.EntryID, Strategy: model.ResolutionMerge, MergedDescription: &merged},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)

	got, err := s.Entries().GetByID(context.Background(), caseID, entry.EntryID)
	require.NoError(t, err)
	assert.Equal(t, merged, got.Description)
	assert.False(t, got.HasConflict)
}

func TestResolveBatch_MergeWithoutDescription(t *testing.T) {
	s := newTestStore(t)
	caseID := newTestCase(t, s)
	entry := seedConflict(t, s, caseID)
	svc := NewConflictService(s, zerolog.Nop())

	report, err := svc.ResolveBatch(context.Background(), caseID, "ana", []model.Resolution{
		{EventID: entry.EntryID, Strategy: model.ResolutionMerge},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 0, report.Errors)

	// Content no-op: the description stays, but the conflict is still
	// cleared and the reviewer stamped.
	got, err := s.Entries().GetByID(context.Background(), caseID, entry.EntryID)
	require.NoError(t, err)
	assert.False(t, got.HasConflict)
	assert.Equal(t, "Processo despachado.", got.Description)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, "ana", *got.ReviewedBy)
}

func TestResolveBatch_KeepBoth(t *testing.T) {
	s := newTestStore(t)
	caseID := newTestCase(t, s)
	entry := seedConflict(t, s, caseID)
	svc := NewConflictService(s, zerolog.Nop())
	ctx := context.Background()

	report, err := svc.ResolveBatch(ctx, caseID, "ana", []model.Resolution{
		{EventID: entry.EntryID, Strategy: model.ResolutionKeepBoth},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)

	lst, err := s.Entries().List(ctx, model.ListEntriesRequest{CaseID: caseID})
	require.NoError(t, err)
	require.Len(t, lst, 2)

	var base, companion *model.TimelineEntry
	for _, e := range lst {
		if e.EntryID == entry.EntryID {
			base = e
		} else {
			companion = e
		}
	}
	require.NotNil(t, base)
	require.NotNil(t, companion)

	assert.False(t, base.HasConflict)
	assert.Equal(t, "Processo despachado.", base.Description)

	assert.Equal(t, model.SourceManualEntry, companion.Source)
	assert.Equal(t, "Despacho proferido pelo juiz.", companion.Description)
	require.NotNil(t, companion.BaseEventID)
	assert.Equal(t, base.EntryID, *companion.BaseEventID)
	require.NotNil(t, companion.RelationType)
	assert.Equal(t, model.RelationRelated, *companion.RelationType)
	assert.NotEqual(t, base.ContentHash, companion.ContentHash)
	assert.True(t, companion.EventDate.Equal(base.EventDate))
}

func TestResolveBatch_PartialFailure(t *testing.T) {
	s := newTestStore(t)
	caseID := newTestCase(t, s)
	svc := NewConflictService(s, zerolog.Nop())
	ctx := context.Background()

	e1 := seedConflict(t, s, caseID)

	e3seed := &model.TimelineEntry{
		CaseID:            caseID,
		ContentHash:       "hash-other",
		EventDate:         day(2025, 2, 1),
		EventType:         "Juntada",
		Description:       "Juntada de petição.",
		NormalizedContent: "juntada de peticao",
		Source:            model.SourceAPIRegistry,
		Confidence:        1.0,
	}
	e3, _, err := s.Entries().Upsert(ctx, e3seed)
	require.NoError(t, err)
	require.NoError(t, s.Entries().RecordVariant(ctx, caseID, "hash-other",
		model.SourceDocumentUpload, "Petição juntada aos autos.", map[string]interface{}{"reason": "description_mismatch"}))

	report, err := svc.ResolveBatch(ctx, caseID, "ana", []model.Resolution{
		{EventID: e1.EntryID, Strategy: model.ResolutionKeepJudit},
		{EventID: "nonexistent-id", Strategy: model.ResolutionKeepJudit},
		{EventID: e3.EntryID, Strategy: model.ResolutionUseDocument},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Resolved)
	assert.Equal(t, 1, report.Errors)
	require.Len(t, report.Results, 3)
	assert.Equal(t, "resolved", report.Results[0].Status)
	assert.Equal(t, "error", report.Results[1].Status)
	assert.Contains(t, report.Results[1].Error, "not found")
	assert.Equal(t, "resolved", report.Results[2].Status)

	got, err := s.Entries().GetByID(ctx, caseID, e3.EntryID)
	require.NoError(t, err)
	assert.False(t, got.HasConflict)
	assert.Equal(t, "Petição juntada aos autos.", got.Description)
}

func TestResolveBatch_NoPendingConflict(t *testing.T) {
	s := newTestStore(t)
	caseID := newTestCase(t, s)
	svc := NewConflictService(s, zerolog.Nop())
	ctx := context.Background()

	plain, _, err := s.Entries().Upsert(ctx, &model.TimelineEntry{
		CaseID:            caseID,
		ContentHash:       "hash-plain",
		EventDate:         day(2025, 1, 5),
		EventType:         "Despacho",
		Description:       "ok",
		NormalizedContent: "ok",
		Source:            model.SourceAPIRegistry,
		Confidence:        1.0,
	})
	require.NoError(t, err)

	report, err := svc.ResolveBatch(ctx, caseID, "ana", []model.Resolution{
		{EventID: plain.EntryID, Strategy: model.ResolutionKeepJudit},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Contains(t, report.Results[0].Error, "no pending conflict")
}

func TestResolveBatch_UnknownCase(t *testing.T) {
	s := newTestStore(t)
	svc := NewConflictService(s, zerolog.Nop())
	_, err := svc.ResolveBatch(context.Background(), "missing", "ana", nil)
	require.ErrorIs(t, err, model.ErrNotFound)
}
