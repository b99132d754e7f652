package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/store"
)

func strptr(s string) *string { return &s }

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	caseID := "case-" + uuid.New().String()[:8]

	// Cases
	c, err := s.Cases().Create(ctx, &model.Case{CaseID: caseID, RegistryRef: "0001234-56.2024.8.26.0100", Title: strptr("Silva vs Acme")})
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	if c.CreationTime.IsZero() {
		t.Fatalf("CreateCase: zero creation time")
	}
	if got, err := s.Cases().Get(ctx, caseID); err != nil || got.RegistryRef != "0001234-56.2024.8.26.0100" {
		t.Fatalf("GetCase: got=%v err=%v", got, err)
	}
	if _, err := s.Cases().Get(ctx, "nope-"+caseID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetCase missing: want ErrNotFound, got %v", err)
	}
	if _, err := s.Cases().Create(ctx, &model.Case{CaseID: caseID, RegistryRef: "other-ref"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("CreateCase duplicate: want ErrConflict, got %v", err)
	}
	if got, err := s.Cases().Get(ctx, caseID); err != nil || got.RegistryRef != "0001234-56.2024.8.26.0100" {
		t.Fatalf("GetCase after duplicate create: got=%v err=%v", got, err)
	}
	if lst, err := s.Cases().List(ctx); err != nil || len(lst) == 0 {
		t.Fatalf("ListCases: n=%d err=%v", len(lst), err)
	}

	// Extractions
	x, err := s.Extractions().Put(ctx, &model.DocumentExtraction{
		CaseID:     caseID,
		DocumentID: "doc-1",
		Model:      "preview-v2",
		Confidence: 0.8,
		Events:     []model.ExtractedEvent{{Date: "2025-01-10", Type: "Despacho", Description: "Processo despachado."}},
	})
	if err != nil {
		t.Fatalf("PutExtraction: %v", err)
	}
	if x.ExtractionID == "" {
		t.Fatalf("PutExtraction: empty id")
	}
	if lst, err := s.Extractions().ListByCase(ctx, caseID); err != nil || len(lst) != 1 || len(lst[0].Events) != 1 {
		t.Fatalf("ListExtractions: got=%v err=%v", lst, err)
	}

	// Entries: atomic insert-or-fetch
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	e1 := &model.TimelineEntry{
		CaseID:            caseID,
		ContentHash:       "hash-1",
		EventDate:         date,
		EventType:         "Despacho",
		Description:       "Processo despachado.",
		NormalizedContent: "processo despachado",
		Source:            model.SourceDocumentUpload,
		Confidence:        0.8,
		OriginalTexts:     map[string]string{string(model.SourceDocumentUpload): "Processo despachado."},
		Metadata:          map[string]interface{}{"documentId": "doc-1"},
	}
	got1, created, err := s.Entries().Upsert(ctx, e1)
	if err != nil || !created {
		t.Fatalf("Upsert new: created=%v err=%v", created, err)
	}
	if got1.EntryID == "" || !got1.EventDate.Equal(date) {
		t.Fatalf("Upsert new: got=%+v", got1)
	}

	dup := *e1
	dup.EntryID = ""
	dup.Description = "different text, same hash"
	got2, created, err := s.Entries().Upsert(ctx, &dup)
	if err != nil || created {
		t.Fatalf("Upsert dup: created=%v err=%v", created, err)
	}
	if got2.EntryID != got1.EntryID || got2.Description != "Processo despachado." {
		t.Fatalf("Upsert dup must return stored row untouched: %+v", got2)
	}

	// Promote: strictly greater confidence wins, ties lose
	sid := "mov-77"
	ok, err := s.Entries().Promote(ctx, caseID, "hash-1", model.Candidate{
		Source: model.SourceAPIRegistry, SourceID: &sid, Confidence: 0.8,
	})
	if err != nil || ok {
		t.Fatalf("Promote tie: ok=%v err=%v", ok, err)
	}
	ok, err = s.Entries().Promote(ctx, caseID, "hash-1", model.Candidate{
		Source: model.SourceAPIRegistry, SourceID: &sid, Confidence: 1.0,
		Metadata: map[string]interface{}{"documentId": "should-not-overwrite", "movementId": "mov-77"},
	})
	if err != nil || !ok {
		t.Fatalf("Promote: ok=%v err=%v", ok, err)
	}
	after, err := s.Entries().GetByID(ctx, caseID, got1.EntryID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after.Source != model.SourceAPIRegistry || after.Confidence != 1.0 {
		t.Fatalf("Promote did not apply: %+v", after)
	}
	if after.Description != "Processo despachado." {
		t.Fatalf("Promote must not touch description: %q", after.Description)
	}
	if after.Metadata["documentId"] != "doc-1" || after.Metadata["movementId"] != "mov-77" {
		t.Fatalf("Promote metadata merge wrong: %v", after.Metadata)
	}
	if _, err := s.Entries().Promote(ctx, caseID, "no-such-hash", model.Candidate{Confidence: 1.0}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Promote missing: want ErrNotFound, got %v", err)
	}

	// RecordVariant flags the conflict without touching attribution
	err = s.Entries().RecordVariant(ctx, caseID, "hash-1", model.SourceDocumentUpload, "Despacho proferido pelo juiz.", map[string]interface{}{"reason": "description_mismatch"})
	if err != nil {
		t.Fatalf("RecordVariant: %v", err)
	}
	after, err = s.Entries().GetByID(ctx, caseID, got1.EntryID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !after.HasConflict || after.ConflictDetails["reason"] != "description_mismatch" {
		t.Fatalf("RecordVariant flags: %+v", after)
	}
	if after.OriginalTexts[string(model.SourceDocumentUpload)] != "Despacho proferido pelo juiz." {
		t.Fatalf("RecordVariant texts: %v", after.OriginalTexts)
	}
	if after.Source != model.SourceAPIRegistry || after.Confidence != 1.0 || after.Description != "Processo despachado." {
		t.Fatalf("RecordVariant must not touch attribution: %+v", after)
	}

	if lst, err := s.Entries().ListConflicts(ctx, caseID); err != nil || len(lst) != 1 || lst[0].EntryID != got1.EntryID {
		t.Fatalf("ListConflicts: got=%v err=%v", lst, err)
	}

	// ApplyResolution clears the conflict, stamps the reviewer, audits
	resolvedAt := time.Now().UTC().Truncate(time.Second)
	resolved, err := s.Entries().ApplyResolution(ctx, store.ResolutionUpdate{
		CaseID:      caseID,
		EntryID:     got1.EntryID,
		Description: strptr("Processo despachado. | Despacho proferido pelo juiz."),
		ReviewedBy:  "ana@lawfirm.test",
		ReviewedAt:  resolvedAt,
		Audit:       map[string]interface{}{"resolution": "merge", "resolvedBy": "ana@lawfirm.test"},
	})
	if err != nil {
		t.Fatalf("ApplyResolution: %v", err)
	}
	if resolved.HasConflict || resolved.ConflictDetails != nil {
		t.Fatalf("ApplyResolution must clear conflict: %+v", resolved)
	}
	if resolved.Description != "Processo despachado. | Despacho proferido pelo juiz." {
		t.Fatalf("ApplyResolution description: %q", resolved.Description)
	}
	if resolved.ReviewedBy == nil || *resolved.ReviewedBy != "ana@lawfirm.test" || resolved.ReviewedAt == nil {
		t.Fatalf("ApplyResolution reviewer: %+v", resolved)
	}
	audit, ok2 := resolved.Metadata["resolutionAudit"].([]interface{})
	if !ok2 || len(audit) != 1 {
		t.Fatalf("ApplyResolution audit: %v", resolved.Metadata)
	}
	if resolved.Metadata["documentId"] != "doc-1" {
		t.Fatalf("ApplyResolution must preserve metadata: %v", resolved.Metadata)
	}
	if _, err := s.Entries().ApplyResolution(ctx, store.ResolutionUpdate{CaseID: caseID, EntryID: "missing", ReviewedAt: resolvedAt}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("ApplyResolution missing: want ErrNotFound, got %v", err)
	}

	// List ordering and filters
	for i, d := range []time.Time{
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	} {
		_, _, err := s.Entries().Upsert(ctx, &model.TimelineEntry{
			CaseID:            caseID,
			ContentHash:       "hash-" + string(rune('a'+i)),
			EventDate:         d,
			EventType:         "Juntada",
			Description:       "extra",
			NormalizedContent: "extra",
			Source:            model.SourceAPIRegistry,
			Confidence:        1.0,
		})
		if err != nil {
			t.Fatalf("Upsert extra: %v", err)
		}
	}
	lst, err := s.Entries().List(ctx, model.ListEntriesRequest{CaseID: caseID})
	if err != nil || len(lst) != 3 {
		t.Fatalf("List: n=%d err=%v", len(lst), err)
	}
	if !lst[0].EventDate.After(lst[2].EventDate) {
		t.Fatalf("List must be newest-first: %v .. %v", lst[0].EventDate, lst[2].EventDate)
	}
	if lst, err := s.Entries().List(ctx, model.ListEntriesRequest{CaseID: caseID, Limit: 1}); err != nil || len(lst) != 1 {
		t.Fatalf("List limit: n=%d err=%v", len(lst), err)
	}
	before := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if lst, err := s.Entries().List(ctx, model.ListEntriesRequest{CaseID: caseID, Before: &before}); err != nil || len(lst) != 1 {
		t.Fatalf("List before: n=%d err=%v", len(lst), err)
	}

	if _, err := s.Entries().GetByID(ctx, caseID, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetByID missing: want ErrNotFound, got %v", err)
	}
}
