package source

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/juriscope/juriscope-timeline/internal/model"
)

// Adapter produces merge candidates for one case from a single origin.
// Fetch returns every candidate it can extract; items it cannot interpret
// (bad dates, empty descriptions) are skipped, not fatal.
type Adapter interface {
	Name() model.Source
	Fetch(ctx context.Context, c *model.Case) ([]model.Candidate, error)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"02/01/2006",
}

// parseEventDate accepts the date shapes seen across extractor output and
// registry payloads. Day precision only; time of day is discarded.
func parseEventDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errors.Errorf("unparseable event date %q", raw)
}
