// Package validate checks request shapes before any handler mutates state.
package validate

import (
	"fmt"
	"regexp"

	"github.com/juriscope/juriscope-timeline/internal/model"
)

// caseIdRx: lowercase letters, digits, hyphen, underscore, 1-64 chars.
var caseIdRx = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// failf builds a validation error carrying the model sentinel, so transports
// map it to a 400 with errors.Is instead of string matching.
func failf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{model.ErrValidation}, args...)...)
}

func NonEmpty(field, v string) error {
	if v == "" {
		return failf("%s is required", field)
	}
	return nil
}

func MaxLen(field string, v *string, limit int) error {
	if v == nil {
		return nil
	}
	if len(*v) > limit {
		return failf("%s exceeds %d characters", field, limit)
	}
	return nil
}

// CaseID validates the case identifier path segment.
func CaseID(v string) error {
	if v == "" {
		return failf("caseId is required")
	}
	if !caseIdRx.MatchString(v) {
		return failf("caseId must match %s", caseIdRx.String())
	}
	return nil
}

// -------- Request specific helpers ----------

// CreateCase validates input for registering a monitored case.
func CreateCase(caseID, registryRef string, title *string) error {
	if err := CaseID(caseID); err != nil {
		return err
	}
	if err := NonEmpty("registryRef", registryRef); err != nil {
		return err
	}
	return MaxLen("title", title, 200)
}

// CreateExtraction validates a preview-extraction snapshot submission.
func CreateExtraction(documentID, modelName string, confidence float64, events []model.ExtractedEvent) error {
	if err := NonEmpty("documentId", documentID); err != nil {
		return err
	}
	if err := NonEmpty("model", modelName); err != nil {
		return err
	}
	if confidence < 0 || confidence > 1 {
		return failf("confidence must be in [0,1]")
	}
	if len(events) == 0 {
		return failf("events must not be empty")
	}
	return nil
}

// ResolveRequest validates the shape of a conflict-resolution batch. Shape
// errors reject the whole request before any mutation; per-item existence
// failures are handled downstream, item by item.
func ResolveRequest(items []model.Resolution) error {
	if len(items) == 0 {
		return failf("resolutions must not be empty")
	}
	for i, it := range items {
		if it.EventID == "" {
			return failf("resolutions[%d].eventId is required", i)
		}
		if !it.Strategy.Valid() {
			return failf("resolutions[%d].resolution must be one of keep_judit, use_document, merge, keep_both", i)
		}
	}
	return nil
}
