package discover

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/models"
)

const validateTimeout = 30 * time.Second

// Validator re-fetches discovered candidates and adjusts confidence and tags
// based on what actually comes back. Heavy mode adds content boosts and a
// guide-page penalty with a hard reject floor.
type Validator struct {
	client  *fetch.Client
	funding []string
	guides  []*regexp.Regexp
	heavy   bool
}

func NewValidator(client *fetch.Client, kw config.Keywords, heavy bool) *Validator {
	v := &Validator{client: client, heavy: heavy}
	for _, k := range kw.Funding {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			v.funding = append(v.funding, k)
		}
	}
	for _, p := range kw.GuidePatterns {
		if re, err := regexp.Compile(p); err == nil {
			v.guides = append(v.guides, re)
		}
	}
	return v
}

// Validate checks one candidate in place and reports whether it survived.
// The candidate keeps its updated tags and confidence either way, so callers
// can persist the full record for rejected URLs too.
func (v *Validator) Validate(ctx context.Context, cand *models.Candidate) bool {
	cctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	out := v.client.Fetch(cctx, cand.URL, nil)
	if out.StatusCode < 200 || out.StatusCode >= 300 {
		cand.AddTag(models.TagInvalidStatus)
		cand.Confidence = clampUnit(cand.Confidence * 0.5)
		return false
	}

	ct := strings.ToLower(out.ContentType)
	if !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml") {
		cand.Confidence *= 0.7
	}

	body := strings.ToLower(string(out.Body))
	if !containsAnyKeyword(body, v.funding) {
		cand.AddTag(models.TagNoFundingContent)
		cand.Confidence *= 0.5
	}

	if v.heavy {
		if strings.Contains(body, "<form") || strings.Contains(body, "apply now") || strings.Contains(body, "application form") {
			cand.Confidence += 0.2
		}
		if strings.Contains(body, "eligibility") || strings.Contains(body, "requirements") || strings.Contains(body, "criteria") {
			cand.Confidence += 0.1
		}
		if matchesAny(v.guides, cand.URL) {
			cand.Confidence -= 0.4
		}
	}
	cand.Confidence = clampUnit(cand.Confidence)

	if v.heavy && cand.Confidence < minCandidateConfidence {
		return false
	}
	return true
}

// ValidateStats summarises one validation pass.
type ValidateStats struct {
	Checked  int
	Kept     int
	Rejected int
}

// ValidateAll validates every candidate in place and returns the survivors.
// The input slice keeps the updated state of rejected candidates as well.
func (v *Validator) ValidateAll(ctx context.Context, cands []models.Candidate) ([]models.Candidate, ValidateStats) {
	var stats ValidateStats
	kept := make([]models.Candidate, 0, len(cands))
	for i := range cands {
		if ctx.Err() != nil {
			break
		}
		stats.Checked++
		if v.Validate(ctx, &cands[i]) {
			kept = append(kept, cands[i])
			stats.Kept++
		} else {
			stats.Rejected++
		}
	}
	log.Printf("[validate] %d candidates checked, %d kept, %d rejected", stats.Checked, stats.Kept, stats.Rejected)
	return kept, stats
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
