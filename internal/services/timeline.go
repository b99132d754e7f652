package services

import (
	"context"

	"github.com/juriscope/juriscope-timeline/internal/model"
	"github.com/juriscope/juriscope-timeline/internal/store"
)

// TimelineService orchestrates case, extraction and timeline read use cases.
type TimelineService struct {
	store store.Store
}

func NewTimelineService(s store.Store) *TimelineService {
	return &TimelineService{store: s}
}

func (s *TimelineService) CreateCase(ctx context.Context, c *model.Case) (*model.Case, error) {
	return s.store.Cases().Create(ctx, c)
}

func (s *TimelineService) GetCase(ctx context.Context, caseID string) (*model.Case, error) {
	return s.store.Cases().Get(ctx, caseID)
}

func (s *TimelineService) ListCases(ctx context.Context) ([]*model.Case, error) {
	return s.store.Cases().List(ctx)
}

// AddExtraction persists one preview-extraction batch after verifying the
// case exists. Extractions are immutable snapshots; merges read them later.
func (s *TimelineService) AddExtraction(ctx context.Context, x *model.DocumentExtraction) (*model.DocumentExtraction, error) {
	if _, err := s.store.Cases().Get(ctx, x.CaseID); err != nil {
		return nil, err
	}
	return s.store.Extractions().Put(ctx, x)
}

func (s *TimelineService) ListTimeline(ctx context.Context, req model.ListEntriesRequest) ([]*model.TimelineEntry, error) {
	if _, err := s.store.Cases().Get(ctx, req.CaseID); err != nil {
		return nil, err
	}
	return s.store.Entries().List(ctx, req)
}

func (s *TimelineService) ListConflicts(ctx context.Context, caseID string) ([]*model.TimelineEntry, error) {
	if _, err := s.store.Cases().Get(ctx, caseID); err != nil {
		return nil, err
	}
	return s.store.Entries().ListConflicts(ctx, caseID)
}

func (s *TimelineService) GetEntry(ctx context.Context, caseID, entryID string) (*model.TimelineEntry, error) {
	return s.store.Entries().GetByID(ctx, caseID, entryID)
}
