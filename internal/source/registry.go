package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/juriscope/juriscope-timeline/internal/model"
)

// registryConfidence applies to every movement from the official registry.
// Registry data is authoritative.
const registryConfidence = 1.0

// RegistryAdapter pulls case movements from the court-registry API.
type RegistryAdapter struct {
	client *resty.Client
	log    zerolog.Logger
}

// NewRegistryAdapter builds an adapter against baseURL. apiKey is sent as a
// bearer token when non-empty.
func NewRegistryAdapter(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *RegistryAdapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &RegistryAdapter{client: client, log: log}
}

func (a *RegistryAdapter) Name() model.Source { return model.SourceAPIRegistry }

type movement struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// movementsResponse accepts both response shapes the registry serves: a flat
// movement list and the paginated variant.
type movementsResponse struct {
	Movements []movement `json:"movements"`
	Pages     []struct {
		Movements []movement `json:"movements"`
	} `json:"pages"`
}

func (r *movementsResponse) flatten() []movement {
	if len(r.Pages) == 0 {
		return r.Movements
	}
	var out []movement
	out = append(out, r.Movements...)
	for _, p := range r.Pages {
		out = append(out, p.Movements...)
	}
	return out
}

func (a *RegistryAdapter) Fetch(ctx context.Context, c *model.Case) ([]model.Candidate, error) {
	var payload movementsResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(fmt.Sprintf("/v1/lawsuits/%s/movements", url.PathEscape(c.RegistryRef)))
	if err != nil {
		return nil, errors.Wrap(err, "registry request failed")
	}
	if resp.IsError() {
		return nil, errors.Errorf("registry returned %s for case %s", resp.Status(), c.CaseID)
	}

	var out []model.Candidate
	for _, m := range payload.flatten() {
		if strings.TrimSpace(m.Description) == "" {
			a.log.Warn().
				Str("caseId", c.CaseID).
				Str("movementId", m.ID).
				Msg("skipping registry movement with empty description")
			continue
		}
		date, err := parseEventDate(m.Date)
		if err != nil {
			a.log.Warn().
				Str("caseId", c.CaseID).
				Str("movementId", m.ID).
				Str("date", m.Date).
				Msg("skipping registry movement with unparseable date")
			continue
		}
		id := m.ID
		cand := model.Candidate{
			EventDate:   date,
			EventType:   m.Type,
			Description: m.Description,
			Source:      model.SourceAPIRegistry,
			Confidence:  registryConfidence,
			Metadata:    map[string]interface{}{"movementId": m.ID},
		}
		if id != "" {
			cand.SourceID = &id
		}
		out = append(out, cand)
	}
	return out, nil
}
