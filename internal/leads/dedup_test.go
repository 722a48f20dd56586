package leads

import (
	"testing"

	"github.com/david/scholarship-scout/internal/models"
)

func TestDedupKeepsHigherQuality(t *testing.T) {
	sparse := models.Lead{
		Name:         "Chevening Scholarship",
		URL:          "https://chevening.org/apply",
		SourceDomain: "chevening.org",
	}
	rich := sparse
	rich.Eligibility = []string{"All countries"}
	rich.HTTPStatus = 200

	kept, stats := Dedup([]models.Lead{sparse, rich})
	if len(kept) != 1 {
		t.Fatalf("expected 1 lead kept, got %d", len(kept))
	}
	if len(kept[0].Eligibility) == 0 {
		t.Fatal("expected the richer lead to win")
	}
	if stats.LowerQuality != 1 {
		t.Fatalf("expected 1 lower-quality drop, got %d", stats.LowerQuality)
	}
}

func TestDedupWinnerIndependentOfOrder(t *testing.T) {
	a := models.Lead{Name: "Award", URL: "https://x.org/a", SourceDomain: "x.org", HTTPStatus: 200}
	b := models.Lead{Name: "Award", URL: "https://x.org/a", SourceDomain: "x.org"}

	kept1, _ := Dedup([]models.Lead{a, b})
	kept2, _ := Dedup([]models.Lead{b, a})
	if len(kept1) != 1 || len(kept2) != 1 {
		t.Fatalf("expected single survivor both ways, got %d and %d", len(kept1), len(kept2))
	}
	if kept1[0].HTTPStatus != 200 || kept2[0].HTTPStatus != 200 {
		t.Fatal("expected the higher-quality lead to win regardless of order")
	}
}

func TestDedupTieBrokenByTrustTier(t *testing.T) {
	aggregator := models.Lead{Name: "Award", URL: "https://x.org/a", SourceDomain: "x.org", TrustTier: models.TierB}
	official := aggregator
	official.TrustTier = models.TierS

	kept, _ := Dedup([]models.Lead{aggregator, official})
	if len(kept) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(kept))
	}
	if kept[0].TrustTier != models.TierS {
		t.Fatalf("expected tier S to win the tie, got %s", kept[0].TrustTier)
	}
}

func TestDedupDropsContentBoundToOtherKey(t *testing.T) {
	original := models.Lead{
		Name:         "Gates Cambridge Scholarship",
		Amount:       "Full funding",
		Deadline:     "2026-12-03",
		URL:          "https://gatescambridge.org/apply",
		SourceDomain: "gatescambridge.org",
	}
	// Same content scraped from an aggregator: different provider, so a
	// different entity key, but an identical content fingerprint.
	mirrored := original
	mirrored.URL = "https://scholarshipdb.example/gates"
	mirrored.SourceDomain = "scholarshipdb.example"

	kept, stats := Dedup([]models.Lead{original, mirrored})
	if len(kept) != 1 {
		t.Fatalf("expected mirror to be dropped, got %d leads", len(kept))
	}
	if kept[0].SourceDomain != "gatescambridge.org" {
		t.Fatalf("expected the first-seen owner to survive, got %s", kept[0].SourceDomain)
	}
	if stats.DuplicateContent != 1 {
		t.Fatalf("expected 1 duplicate-content drop, got %d", stats.DuplicateContent)
	}
}

func TestQualityScore(t *testing.T) {
	empty := models.Lead{}
	if got := QualityScore(&empty); got != 0 {
		t.Fatalf("expected empty lead to score 0, got %d", got)
	}

	full := models.Lead{
		DeadlineDate:      "2026-01-01",
		Eligibility:       []string{"TW"},
		IsTaiwanEligible:  models.TriTrue,
		Amount:            "£5,000",
		HTTPStatus:        200,
		OfficialSourceURL: "https://uni.ac.uk/official",
	}
	if got := QualityScore(&full); got != 11 {
		t.Fatalf("expected full lead to score 11, got %d", got)
	}

	placeholder := models.Lead{Amount: "See website"}
	if got := QualityScore(&placeholder); got != 0 {
		t.Fatalf("expected placeholder amount to score 0, got %d", got)
	}
}
