package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	respond "github.com/juriscope/juriscope-timeline/internal/api/respond"
	"github.com/juriscope/juriscope-timeline/internal/api/validate"
	"github.com/juriscope/juriscope-timeline/internal/auth"
	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/services"
)

// CaseHandler is a thin HTTP transport over the TimelineService case and
// extraction operations.
type CaseHandler struct {
	svc        *services.TimelineService
	authorizer auth.Authorizer
}

func NewCaseHandler(svc *services.TimelineService, authorizer auth.Authorizer) *CaseHandler {
	return &CaseHandler{svc: svc, authorizer: authorizer}
}

func (h *CaseHandler) authorize(w http.ResponseWriter, r *http.Request, operation string) bool {
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

// CreateCase POST /v0/cases
func (h *CaseHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "case.create") {
		return
	}
	var req struct {
		CaseID      string  `json:"caseId"`
		RegistryRef string  `json:"registryRef"`
		Title       *string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.CreateCase(req.CaseID, req.RegistryRef, req.Title); err != nil {
		respond.WriteFromError(w, err)
		return
	}
	out, err := h.svc.CreateCase(r.Context(), &model.Case{
		CaseID:      req.CaseID,
		RegistryRef: req.RegistryRef,
		Title:       req.Title,
	})
	if err != nil {
		// Re-registering an existing case is a 409, not a 500.
		respond.WriteFromError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

// GetCase GET /v0/cases/{caseId}
func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "case.read") {
		return
	}
	caseID := mux.Vars(r)["caseId"]
	out, err := h.svc.GetCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Case not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// ListCases GET /v0/cases
func (h *CaseHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "case.read") {
		return
	}
	lst, err := h.svc.ListCases(r.Context())
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"cases": lst, "count": len(lst)})
}

// CreateExtraction POST /v0/cases/{caseId}/extractions
func (h *CaseHandler) CreateExtraction(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, "extraction.create") {
		return
	}
	caseID := mux.Vars(r)["caseId"]
	var req struct {
		DocumentID string                 `json:"documentId"`
		Model      string                 `json:"model"`
		Confidence float64                `json:"confidence"`
		Events     []model.ExtractedEvent `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.CreateExtraction(req.DocumentID, req.Model, req.Confidence, req.Events); err != nil {
		respond.WriteFromError(w, err)
		return
	}
	out, err := h.svc.AddExtraction(r.Context(), &model.DocumentExtraction{
		CaseID:     caseID,
		DocumentID: req.DocumentID,
		Model:      req.Model,
		Confidence: req.Confidence,
		Events:     req.Events,
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Case not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}
