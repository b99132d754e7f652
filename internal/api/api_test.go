package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juriscope/juriscope-timeline/internal/auth"
	"github.com/juriscope/juriscope-timeline/internal/jobs"
	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/services"
	"github.com/juriscope/juriscope-timeline/internal/source"
	"github.com/juriscope/juriscope-timeline/internal/store"
	"github.com/juriscope/juriscope-timeline/internal/store/sqlite"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type stubAdapter struct {
	name  model.Source
	cands []model.Candidate
}

func (a *stubAdapter) Name() model.Source { return a.name }
func (a *stubAdapter) Fetch(context.Context, *model.Case) ([]model.Candidate, error) {
	return a.cands, nil
}

func newTestRouter(t *testing.T, adapters ...source.Adapter) (http.Handler, store.Store) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := sqlite.New(db)

	queue, err := jobs.NewQueue(db, "sqlite")
	require.NoError(t, err)

	router := NewRouter(RouterDeps{
		Timeline:   services.NewTimelineService(st),
		Merge:      services.NewMergeService(st, adapters, zerolog.Nop()),
		Conflicts:  services.NewConflictService(st, zerolog.Nop()),
		Queue:      queue,
		Authorizer: auth.NewStaticAuthorizer("test-key"),
	})
	return router, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer test-key")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createCase(t *testing.T, h http.Handler, caseID string) {
	t.Helper()
	rec := doJSON(t, h, "POST", "/v0/cases", map[string]interface{}{
		"caseId":      caseID,
		"registryRef": "0001234-56.2024.8.26.0100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCaseEndpoints(t *testing.T) {
	h, _ := newTestRouter(t)
	createCase(t, h, "case-1")

	rec := doJSON(t, h, "GET", "/v0/cases/case-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Case
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "0001234-56.2024.8.26.0100", got.RegistryRef)

	rec = doJSON(t, h, "GET", "/v0/cases/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, "POST", "/v0/cases", map[string]interface{}{"caseId": "BAD ID", "registryRef": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Re-registering an existing case conflicts.
	rec = doJSON(t, h, "POST", "/v0/cases", map[string]interface{}{"caseId": "case-1", "registryRef": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, "GET", "/v0/cases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestAuthRequired(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/v0/cases", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("GET", "/v0/cases", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractionEndpoint(t *testing.T) {
	h, st := newTestRouter(t)
	createCase(t, h, "case-1")

	rec := doJSON(t, h, "POST", "/v0/cases/case-1/extractions", map[string]interface{}{
		"documentId": "doc-1",
		"model":      "preview-v2",
		"confidence": 0.8,
		"events": []map[string]string{
			{"date": "2025-01-10", "type": "Despacho", "description": "Processo despachado."},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	lst, err := st.Extractions().ListByCase(context.Background(), "case-1")
	require.NoError(t, err)
	require.Len(t, lst, 1)

	// Unknown case
	rec = doJSON(t, h, "POST", "/v0/cases/ghost/extractions", map[string]interface{}{
		"documentId": "doc-1", "model": "m", "confidence": 0.5,
		"events": []map[string]string{{"date": "2025-01-10", "type": "t", "description": "d"}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Shape error
	rec = doJSON(t, h, "POST", "/v0/cases/case-1/extractions", map[string]interface{}{
		"documentId": "doc-1", "model": "m", "confidence": 1.4,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMergeAndTimelineEndpoints(t *testing.T) {
	reg := &stubAdapter{name: model.SourceAPIRegistry, cands: []model.Candidate{
		{EventDate: day(2025, 1, 10), EventType: "Despacho", Description: "Processo despachado.",
			Source: model.SourceAPIRegistry, Confidence: 1.0},
		{EventDate: day(2025, 2, 1), EventType: "Juntada", Description: "Juntada de petição.",
			Source: model.SourceAPIRegistry, Confidence: 1.0},
	}}
	h, _ := newTestRouter(t, reg)
	createCase(t, h, "case-1")

	rec := doJSON(t, h, "POST", "/v0/cases/case-1/timeline/merge", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res model.MergeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, model.MergeResult{Total: 2, New: 2}, res)

	rec = doJSON(t, h, "GET", "/v0/cases/case-1/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Entries []model.TimelineEntry `json:"entries"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Equal(t, 2, listing.Count)
	// newest first
	assert.Equal(t, "Juntada de petição.", listing.Entries[0].Description)

	rec = doJSON(t, h, "GET", "/v0/cases/case-1/timeline?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doJSON(t, h, "GET", "/v0/cases/case-1/timeline?before=2025-02-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doJSON(t, h, "GET", "/v0/cases/case-1/timeline?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Single-entry read
	rec = doJSON(t, h, "GET", "/v0/cases/case-1/timeline/"+listing.Entries[0].EntryID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var single model.TimelineEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))
	assert.Equal(t, "Juntada de petição.", single.Description)

	rec = doJSON(t, h, "GET", "/v0/cases/case-1/timeline/ghost-entry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, "POST", "/v0/cases/ghost/timeline/merge", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueMergeEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	createCase(t, h, "case-1")

	rec := doJSON(t, h, "POST", "/v0/cases/case-1/timeline/merge-jobs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"jobId"`)
	assert.Contains(t, rec.Body.String(), `"pending"`)

	rec = doJSON(t, h, "POST", "/v0/cases/ghost/timeline/merge-jobs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConflictEndpoints(t *testing.T) {
	doc := &stubAdapter{name: model.SourceDocumentUpload, cands: []model.Candidate{
		{EventDate: day(2025, 1, 10), EventType: "Despacho", Description: "Despacho proferido",
			Source: model.SourceDocumentUpload, Confidence: 0.8},
	}}
	reg := &stubAdapter{name: model.SourceAPIRegistry, cands: []model.Candidate{
		{EventDate: day(2025, 1, 10), EventType: "Despacho", Description: "DESPACHO PROFERIDO.",
			Source: model.SourceAPIRegistry, Confidence: 1.0},
	}}
	h, _ := newTestRouter(t, doc, reg)
	createCase(t, h, "case-1")

	rec := doJSON(t, h, "POST", "/v0/cases/case-1/timeline/merge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, "GET", "/v0/cases/case-1/timeline/conflicts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conflicts struct {
		Conflicts []model.TimelineEntry `json:"conflicts"`
		Count     int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflicts))
	require.Equal(t, 1, conflicts.Count)
	eventID := conflicts.Conflicts[0].EntryID

	// Shape error rejects the whole batch with 400.
	rec = doJSON(t, h, "POST", "/v0/cases/case-1/timeline/conflicts/resolve", map[string]interface{}{
		"resolutions": []map[string]string{{"eventId": eventID, "resolution": "delete_everything"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be one of")

	// Partial batch: existing + nonexistent.
	rec = doJSON(t, h, "POST", "/v0/cases/case-1/timeline/conflicts/resolve", map[string]interface{}{
		"reviewedBy": "ana@lawfirm.test",
		"resolutions": []map[string]string{
			{"eventId": eventID, "resolution": "keep_judit"},
			{"eventId": "ghost-event", "resolution": "keep_judit"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Success bool                     `json:"success"`
		Message string                   `json:"message"`
		Results []model.ResolutionResult `json:"results"`
		Stats   map[string]int           `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Success)
	assert.Equal(t, 2, out.Stats["total"])
	assert.Equal(t, 1, out.Stats["resolved"])
	assert.Equal(t, 1, out.Stats["errors"])
	require.Len(t, out.Results, 2)
	assert.Equal(t, "resolved", out.Results[0].Status)
	assert.Equal(t, "error", out.Results[1].Status)

	rec = doJSON(t, h, "GET", "/v0/cases/case-1/timeline/conflicts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	BindServiceHealth(func() bool { return true })
	t.Cleanup(func() { BindServiceHealth(func() bool { return healthyFlag.Load() == 1 }) })

	req := httptest.NewRequest("GET", "/v0/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
