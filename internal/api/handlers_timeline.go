package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	respond "github.com/juriscope/juriscope-timeline/internal/api/respond"
	"github.com/juriscope/juriscope-timeline/internal/api/validate"
	"github.com/juriscope/juriscope-timeline/internal/auth"
	"github.com/juriscope/juriscope-timeline/internal/jobs"
	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/services"
)

// TimelineHandler exposes merge, listing and conflict-resolution endpoints.
type TimelineHandler struct {
	timeline   *services.TimelineService
	merge      *services.MergeService
	conflicts  *services.ConflictService
	queue      *jobs.Queue
	authorizer auth.Authorizer
}

func NewTimelineHandler(timeline *services.TimelineService, merge *services.MergeService, conflicts *services.ConflictService, queue *jobs.Queue, authorizer auth.Authorizer) *TimelineHandler {
	return &TimelineHandler{timeline: timeline, merge: merge, conflicts: conflicts, queue: queue, authorizer: authorizer}
}

func (h *TimelineHandler) authorize(w http.ResponseWriter, r *http.Request, operation string) bool {
	apiKey, err := auth.ExtractAPIKey(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
		return false
	}
	if _, err := h.authorizer.Authorize(r.Context(), apiKey, operation); err != nil {
		respond.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return false
	}
	return true
}

// MergeTimeline POST /v0/cases/{caseId}/timeline/merge
// Runs one synchronous merge pass and reports the classification counts.
func (h *TimelineHandler) MergeTimeline(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "timeline.merge") {
		return
	}
	caseID := mux.Vars(r)["caseId"]
	res, err := h.merge.MergeCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Case not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// EnqueueMerge POST /v0/cases/{caseId}/timeline/merge-jobs
// Schedules an asynchronous merge pass executed by the merge worker.
func (h *TimelineHandler) EnqueueMerge(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "timeline.merge") {
		return
	}
	caseID := mux.Vars(r)["caseId"]
	if _, err := h.timeline.GetCase(r.Context(), caseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Case not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	id, err := h.queue.Enqueue(r.Context(), caseID)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"jobId": id, "status": "pending"})
}

// ListTimeline GET /v0/cases/{caseId}/timeline?limit=&before=
func (h *TimelineHandler) ListTimeline(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "timeline.read") {
		return
	}
	caseID := mux.Vars(r)["caseId"]

	req := model.ListEntriesRequest{CaseID: caseID}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		req.Limit = n
	}
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respond.WriteBadRequest(w, "before must be a YYYY-MM-DD date")
			return
		}
		req.Before = &t
	}

	lst, err := h.timeline.ListTimeline(r.Context(), req)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Case not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": lst, "count": len(lst)})
}

// GetEntry GET /v0/cases/{caseId}/timeline/{eventId}
func (h *TimelineHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "timeline.read") {
		return
	}
	vars := mux.Vars(r)
	entry, err := h.timeline.GetEntry(r.Context(), vars["caseId"], vars["eventId"])
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Timeline entry not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, entry)
}

// ListConflicts GET /v0/cases/{caseId}/timeline/conflicts
func (h *TimelineHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "timeline.read") {
		return
	}
	caseID := mux.Vars(r)["caseId"]
	lst, err := h.timeline.ListConflicts(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Case not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"conflicts": lst, "count": len(lst)})
}

// ResolveConflicts POST /v0/cases/{caseId}/timeline/conflicts/resolve
// Shape errors reject the whole batch with 400; per-item failures are
// reported in the results and never abort the remaining items.
func (h *TimelineHandler) ResolveConflicts(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "timeline.resolve") {
		return
	}
	caseID := mux.Vars(r)["caseId"]
	var req struct {
		ReviewedBy  string             `json:"reviewedBy"`
		Resolutions []model.Resolution `json:"resolutions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.ResolveRequest(req.Resolutions); err != nil {
		respond.WriteFromError(w, err)
		return
	}

	report, err := h.conflicts.ResolveBatch(r.Context(), caseID, req.ReviewedBy, req.Resolutions)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Case not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}

	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": report.Errors == 0,
		"message": fmt.Sprintf("%d resolved, %d failed", report.Resolved, report.Errors),
		"results": report.Results,
		"stats": map[string]int{
			"total":    len(report.Results),
			"resolved": report.Resolved,
			"errors":   report.Errors,
		},
	})
}
