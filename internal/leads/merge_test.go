package leads

import (
	"testing"
	"time"

	"github.com/david/scholarship-scout/internal/models"
)

func TestMergeBrowserResultFillsFields(t *testing.T) {
	lead := models.Lead{
		Name:       "Scholarship",
		URL:        "https://spa.example.com/s",
		Amount:     "See website",
		Confidence: 0.5,
		Tags:       []string{models.TagPendingBrowser},
	}
	result := models.BrowserResult{
		URL:         "https://spa.example.com/s",
		Amount:      "£12,000 per year",
		Deadline:    "2026-04-30",
		Eligibility: []string{"International students"},
		FetchedAt:   time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}

	if !MergeBrowserResult(&lead, result) {
		t.Fatal("expected merge to report a change")
	}
	if lead.Amount != "£12,000 per year" {
		t.Fatalf("expected browser amount to replace placeholder, got %q", lead.Amount)
	}
	if lead.DeadlineDate != "2026-04-30" {
		t.Fatalf("expected structured deadline from merge, got %q", lead.DeadlineDate)
	}
	if lead.DeadlineConfidence != models.DeadlineConfirmed {
		t.Fatalf("expected confirmed deadline, got %q", lead.DeadlineConfidence)
	}
	if lead.HasTag(models.TagPendingBrowser) {
		t.Fatal("expected pending_browser tag removed")
	}
	if lead.Confidence < 0.8 {
		t.Fatalf("expected confidence raised to at least 0.8, got %.2f", lead.Confidence)
	}
	if len(lead.Eligibility) != 1 {
		t.Fatalf("expected eligibility unioned in, got %v", lead.Eligibility)
	}
	if len(lead.ExtractionEvidence) == 0 {
		t.Fatal("expected evidence recorded for merged fields")
	}
	for _, ev := range lead.ExtractionEvidence {
		if ev.Method != models.MethodBrowser {
			t.Fatalf("expected browser method on evidence, got %q", ev.Method)
		}
	}
}

func TestMergeBrowserResultIdempotent(t *testing.T) {
	lead := models.Lead{
		Name:       "Scholarship",
		URL:        "https://spa.example.com/s",
		Confidence: 0.4,
		Tags:       []string{models.TagPendingBrowser},
	}
	result := models.BrowserResult{
		URL:         "https://spa.example.com/s",
		Name:        "Rendered Scholarship Name",
		Deadline:    "30 April 2026",
		Eligibility: []string{"Taiwan", "Vietnam"},
		FetchedAt:   time.Now().UTC(),
	}

	if !MergeBrowserResult(&lead, result) {
		t.Fatal("expected first merge to change the lead")
	}
	evidence := len(lead.ExtractionEvidence)
	eligibility := len(lead.Eligibility)

	if MergeBrowserResult(&lead, result) {
		t.Fatal("expected second merge of the same result to be a no-op")
	}
	if len(lead.ExtractionEvidence) != evidence {
		t.Fatalf("expected evidence untouched on re-merge, got %d then %d", evidence, len(lead.ExtractionEvidence))
	}
	if len(lead.Eligibility) != eligibility {
		t.Fatalf("expected eligibility untouched on re-merge, got %d then %d", eligibility, len(lead.Eligibility))
	}
}

func TestMergeBrowserResultIgnoresPlaceholders(t *testing.T) {
	lead := models.Lead{Name: "Real Name", Amount: "£3,000", Confidence: 0.9}
	result := models.BrowserResult{
		URL:    "https://x.org/s",
		Name:   "",
		Amount: "Check website",
	}

	if MergeBrowserResult(&lead, result) {
		t.Fatal("expected placeholder-only result to change nothing")
	}
	if lead.Name != "Real Name" || lead.Amount != "£3,000" {
		t.Fatalf("expected existing values kept, got %q / %q", lead.Name, lead.Amount)
	}
	if lead.Confidence != 0.9 {
		t.Fatalf("expected confidence untouched, got %.2f", lead.Confidence)
	}
}

func TestMergeBrowserResultUnionsEligibilityCaseInsensitive(t *testing.T) {
	lead := models.Lead{Name: "S", Eligibility: []string{"Taiwan"}}
	result := models.BrowserResult{URL: "https://x.org/s", Eligibility: []string{"taiwan", "Japan"}}

	MergeBrowserResult(&lead, result)
	if len(lead.Eligibility) != 2 {
		t.Fatalf("expected case-insensitive union of 2 entries, got %v", lead.Eligibility)
	}
}
