package api

import (
	"github.com/gorilla/mux"

	"github.com/juriscope/juriscope-timeline/internal/api/recovery"
	"github.com/juriscope/juriscope-timeline/internal/auth"
	"github.com/juriscope/juriscope-timeline/internal/jobs"
	"github.com/juriscope/juriscope-timeline/internal/services"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Timeline   *services.TimelineService
	Merge      *services.MergeService
	Conflicts  *services.ConflictService
	Queue      *jobs.Queue
	Authorizer auth.Authorizer
}

// NewRouter wires all API routes to handlers.
func NewRouter(d RouterDeps) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	cases := NewCaseHandler(d.Timeline, d.Authorizer)
	root.HandleFunc("/v0/cases", cases.CreateCase).Methods("POST")
	root.HandleFunc("/v0/cases", cases.ListCases).Methods("GET")
	root.HandleFunc("/v0/cases/{caseId}", cases.GetCase).Methods("GET")
	root.HandleFunc("/v0/cases/{caseId}/extractions", cases.CreateExtraction).Methods("POST")

	timeline := NewTimelineHandler(d.Timeline, d.Merge, d.Conflicts, d.Queue, d.Authorizer)
	root.HandleFunc("/v0/cases/{caseId}/timeline", timeline.ListTimeline).Methods("GET")
	root.HandleFunc("/v0/cases/{caseId}/timeline/merge", timeline.MergeTimeline).Methods("POST")
	root.HandleFunc("/v0/cases/{caseId}/timeline/merge-jobs", timeline.EnqueueMerge).Methods("POST")
	root.HandleFunc("/v0/cases/{caseId}/timeline/conflicts", timeline.ListConflicts).Methods("GET")
	root.HandleFunc("/v0/cases/{caseId}/timeline/conflicts/resolve", timeline.ResolveConflicts).Methods("POST")
	// Registered after the fixed /timeline/* segments so they win the match.
	root.HandleFunc("/v0/cases/{caseId}/timeline/{eventId}", timeline.GetEntry).Methods("GET")

	healthHandler := NewHealthHandler()
	root.HandleFunc("/v0/health", healthHandler.CheckHealth).Methods("GET")

	return root
}
