package leads

import (
	"strings"

	"github.com/david/scholarship-scout/internal/models"
)

const mergedConfidenceFloor = 0.8

// MergeBrowserResult folds a headless-browser extraction back into a lead.
// Browser values win when they carry real content, eligibility is
// set-unioned, and the pending_browser tag comes off. Merging the same
// result twice changes nothing.
func MergeBrowserResult(l *models.Lead, r models.BrowserResult) bool {
	changed := false

	merge := func(attr string, dst *string, src string) {
		src = strings.TrimSpace(src)
		if models.NeedsValue(src) || *dst == src {
			return
		}
		*dst = src
		changed = true
		l.AddEvidence(models.ExtractionEvidence{
			Attribute: attr,
			Snippet:   src,
			URL:       r.URL,
			Method:    models.MethodBrowser,
		})
	}

	merge("name", &l.Name, r.Name)
	merge("amount", &l.Amount, r.Amount)
	merge("deadline", &l.Deadline, r.Deadline)

	if changed {
		if t, ok := ParseDeadline(l.Deadline); ok {
			iso := t.Format("2006-01-02")
			if l.DeadlineDate != iso {
				l.DeadlineDate = iso
				l.DeadlineConfidence = models.DeadlineConfirmed
			}
		}
	}

	for _, item := range r.Eligibility {
		item = strings.TrimSpace(item)
		if item == "" || containsFold(l.Eligibility, item) {
			continue
		}
		l.Eligibility = append(l.Eligibility, item)
		changed = true
	}

	if l.HasTag(models.TagPendingBrowser) {
		l.RemoveTag(models.TagPendingBrowser)
		changed = true
	}
	if l.Confidence < mergedConfidenceFloor {
		l.Confidence = mergedConfidenceFloor
		changed = true
	}
	if changed && !r.FetchedAt.IsZero() {
		l.LastCheckedAt = r.FetchedAt
	}
	return changed
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
