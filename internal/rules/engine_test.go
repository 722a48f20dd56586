package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/models"
)

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	set, err := Load("")
	if err != nil {
		t.Fatalf("load default rules: %v", err)
	}
	return NewEngine(set, config.Profile{
		Nationality: "Taiwan",
		StudyLevel:  "masters",
		StudyStart:  "2026-09",
	})
}

func customEngine(set *RuleSet, profile config.Profile) *Engine {
	set.compile()
	return NewEngine(set, profile)
}

func hasRuleID(ids []string, want string) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func TestSearchTextPullsAllFields(t *testing.T) {
	l := &models.Lead{
		Name:        "Gates Scholarship",
		Amount:      "Full Cost",
		Notes:       "Leadership POTENTIAL",
		Eligibility: []string{"International students"},
		URL:         "https://www.gatescambridge.org/",
		Source:      "British Council",
	}
	text := SearchText(l)
	for _, want := range []string{"gates", "full cost", "potential", "international", "gatescambridge", "british council"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected search text to contain %q, got %q", want, text)
		}
	}
}

func TestDeadlineIsNull(t *testing.T) {
	cases := []struct {
		name string
		lead models.Lead
		want bool
	}{
		{"empty", models.Lead{}, true},
		{"tbd", models.Lead{Deadline: "TBD"}, true},
		{"check website", models.Lead{Deadline: "Check website"}, true},
		{"labelled tbd", models.Lead{Deadline: "TBD (Summer 2026)"}, false},
		{"structured date", models.Lead{DeadlineDate: "2026-03-01"}, false},
		{"freeform date", models.Lead{Deadline: "1 March 2026"}, false},
	}
	for _, tc := range cases {
		if got := DeadlineIsNull(&tc.lead); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestEvaluateHardRejectsTaiwanIneligible(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:              "Commonwealth Shared Scholarship",
		URL:               "https://cscuk.fcdo.gov.uk/scholarships/commonwealth-shared/",
		EligibleCountries: []string{"Bangladesh", "Kenya", "Nigeria"},
		IsTaiwanEligible:  models.TriFalse,
		DeadlineDate:      "2026-10-01",
	}

	out := e.Evaluate(l, testNow)
	if !out.HardReject {
		t.Fatal("expected a hard reject")
	}
	if out.Bucket != models.BucketRejected {
		t.Fatalf("expected bucket C, got %q", out.Bucket)
	}
	if len(out.HardReasons) != 1 || !strings.Contains(out.HardReasons[0], "E-NATION-TW-001") {
		t.Fatalf("expected the Taiwan rule in hard reasons, got %v", out.HardReasons)
	}
	for _, a := range out.Audit {
		if a.Stage != StageHardReject {
			t.Fatalf("expected evaluation to stop at the hard stage, got a %s entry", a.Stage)
		}
	}
}

func TestEvaluateHardRejectsHomeFeeOnly(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:             "Vice-Chancellor's Bursary",
		URL:              "https://www.port.ac.uk/funding/vc-bursary",
		Notes:            "Open to students with Home fee status only.",
		IsTaiwanEligible: models.TriUnknown,
		DeadlineDate:     "2026-08-01",
	}

	out := e.Evaluate(l, testNow)
	if !out.HardReject || out.Bucket != models.BucketRejected {
		t.Fatalf("expected bucket C hard reject, got %+v", out)
	}
	if !strings.Contains(strings.Join(out.HardReasons, " "), "E-FEE-001") {
		t.Fatalf("expected the Home-fee rule, got %v", out.HardReasons)
	}
	if !hasRuleID(out.MatchedRuleIDs, "E-FEE-001") {
		t.Fatalf("expected E-FEE-001 in matched rules, got %v", out.MatchedRuleIDs)
	}
}

func TestEvaluateHardRejectsDoctoralOnly(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:             "Faraday Research Studentship",
		URL:              "https://www.research.ac.uk/studentships/faraday",
		Notes:            "This studentship is open only to PhD applicants in chemistry.",
		IsTaiwanEligible: models.TriUnknown,
		DeadlineDate:     "2026-09-30",
	}

	out := e.Evaluate(l, testNow)
	if !out.HardReject {
		t.Fatal("expected a hard reject for a doctoral-only award")
	}
	if !hasRuleID(out.MatchedRuleIDs, "E-LEVEL-PHD-001") {
		t.Fatalf("expected E-LEVEL-PHD-001, got %v", out.MatchedRuleIDs)
	}
}

func TestEvaluateDoctoralRuleSparesMastersAwards(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:             "Graduate Research Award",
		URL:              "https://www.research.ac.uk/awards/graduate",
		Notes:            "Open only to PhD and Master's degree applicants.",
		IsTaiwanEligible: models.TriUnknown,
		DeadlineDate:     "2026-09-30",
	}

	out := e.Evaluate(l, testNow)
	if hasRuleID(out.MatchedRuleIDs, "E-LEVEL-PHD-001") {
		t.Fatal("expected the not_any_regex guard to spare an award that also admits masters")
	}
}

func TestEvaluateElapsedDeadlineGoesToMissed(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:             "Clarendon Fund",
		URL:              "https://www.ox.ac.uk/clarendon",
		DeadlineDate:     "2025-11-30",
		IsTaiwanEligible: models.TriUnknown,
	}

	out := e.Evaluate(l, testNow)
	if !out.HardReject {
		t.Fatal("expected a hard reject for an elapsed deadline")
	}
	if out.Bucket != models.BucketMissed {
		t.Fatalf("expected bucket X, got %q", out.Bucket)
	}
	if !hasRuleID(out.MatchedRuleIDs, "E-DEADLINE-PAST-001") {
		t.Fatalf("expected E-DEADLINE-PAST-001, got %v", out.MatchedRuleIDs)
	}
}

func TestEvaluateUnknownDeadlineGoesToWatchlist(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:             "Glasgow International Leadership Scholarship",
		URL:              "https://www.gla.ac.uk/scholarships/international-leadership/",
		Deadline:         "TBD",
		IsTaiwanEligible: models.TriUnknown,
		HTTPStatus:       200,
	}

	out := e.Evaluate(l, testNow)
	if out.HardReject {
		t.Fatalf("expected no hard reject, got %v", out.HardReasons)
	}
	if out.Bucket != models.BucketPrepare {
		t.Fatalf("expected bucket B from the soft stage, got %q", out.Bucket)
	}
	if !out.Watchlist {
		t.Fatal("expected an unknown deadline to flag the watchlist")
	}
	if !strings.Contains(strings.Join(out.SoftFlags, " "), "S-DEADLINE-UNKNOWN-001") {
		t.Fatalf("expected the unknown-deadline flag, got %v", out.SoftFlags)
	}
}

func TestEvaluateLabelledDeadlineIsNotNull(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:             "Warwick Chancellor's International Scholarship",
		URL:              "https://warwick.ac.uk/scholarships/chancellors",
		Deadline:         "TBD (Summer 2026)",
		IsTaiwanEligible: models.TriUnknown,
	}

	out := e.Evaluate(l, testNow)
	if hasRuleID(out.MatchedRuleIDs, "S-DEADLINE-UNKNOWN-001") {
		t.Fatal("expected a labelled deadline to escape the is_null predicate")
	}
}

func TestEvaluateSoftFlagsAggregatorProvenance(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:             "International Masters Awards Roundup",
		URL:              "https://www.scholarshipportal.com/listing/uk-masters",
		Source:           "ScholarshipPortal",
		DeadlineDate:     "2026-04-01",
		IsTaiwanEligible: models.TriUnknown,
	}

	out := e.Evaluate(l, testNow)
	if out.Bucket != models.BucketPrepare {
		t.Fatalf("expected bucket B, got %q", out.Bucket)
	}
	if !strings.Contains(strings.Join(out.SoftFlags, " "), "S-SOURCE-AGG-001") {
		t.Fatalf("expected the aggregator flag, got %v", out.SoftFlags)
	}
	if out.Watchlist {
		t.Fatal("aggregator provenance alone should not flag the watchlist")
	}
}

func TestEvaluatePositiveScoringAccumulates(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:             "Excellence Scholarship",
		Amount:           "Fully funded",
		Notes:            "No separate application required.",
		URL:              "https://www.bris.ac.uk/scholarships/excellence",
		IsTaiwanEligible: models.TriTrue,
		HTTPStatus:       200,
		DeadlineDate:     "2026-01-30",
	}

	out := e.Evaluate(l, testNow)
	if out.HardReject {
		t.Fatalf("expected no hard reject, got %v", out.HardReasons)
	}
	if out.ScoreAdd != 75 {
		t.Fatalf("expected score add 75 from four positive rules, got %d", out.ScoreAdd)
	}
	if out.EffortReduce != 20 {
		t.Fatalf("expected effort reduce 20, got %d", out.EffortReduce)
	}
	if len(out.MatchReasons) != 4 {
		t.Fatalf("expected four match reasons, got %v", out.MatchReasons)
	}
	if out.Bucket != "" {
		t.Fatalf("expected positive rules to leave the bucket alone, got %q", out.Bucket)
	}
}

func TestEvaluateAuditCoversEveryRule(t *testing.T) {
	e := testEngine(t)
	l := &models.Lead{
		Name:             "Generic Award",
		URL:              "https://example.org/award",
		DeadlineDate:     "2026-06-30",
		IsTaiwanEligible: models.TriUnknown,
	}

	out := e.Evaluate(l, testNow)
	if out.HardReject {
		t.Fatalf("expected no hard reject, got %v", out.HardReasons)
	}
	if len(out.Audit) != e.Set.Len() {
		t.Fatalf("expected %d audit entries, got %d", e.Set.Len(), len(out.Audit))
	}
	if out.Audit[0].Stage != StageHardReject {
		t.Fatalf("expected the audit to open with the hard stage, got %s", out.Audit[0].Stage)
	}
	if last := out.Audit[len(out.Audit)-1]; last.Stage != StagePositiveScoring {
		t.Fatalf("expected the audit to close with the positive stage, got %s", last.Stage)
	}
	for _, a := range out.Audit {
		if a.Fired && a.Detail == "" {
			t.Fatalf("expected a detail on fired entry %s", a.RuleID)
		}
		if a.LeadURL != l.URL {
			t.Fatalf("expected audit entries to carry the lead URL, got %q", a.LeadURL)
		}
	}
}

func TestEvaluateAllPredicatesMustPass(t *testing.T) {
	set := &RuleSet{PositiveScoring: []Rule{{
		ID:   "P-AND-001",
		Name: "Text and status",
		When: When{
			AnyRegex:   []string{"scholarship"},
			HTTPStatus: &HTTPStatusWhen{AnyOf: []int{200}},
		},
		Action: Action{ScoreAdd: 5},
	}}}
	e := customEngine(set, config.Profile{})

	textOnly := &models.Lead{Name: "Scholarship"}
	if out := e.Evaluate(textOnly, testNow); len(out.MatchedRuleIDs) != 0 {
		t.Fatalf("expected no fire without the http status, got %v", out.MatchedRuleIDs)
	}

	both := &models.Lead{Name: "Scholarship", HTTPStatus: 200}
	if out := e.Evaluate(both, testNow); out.ScoreAdd != 5 {
		t.Fatalf("expected score add 5 with both predicates passing, got %d", out.ScoreAdd)
	}
}

func TestEvaluateBrokenPatternNeverFires(t *testing.T) {
	set := &RuleSet{HardReject: []Rule{{
		ID:     "E-BAD-001",
		Name:   "Broken pattern",
		When:   When{AnyRegex: []string{"(", "scholarship"}},
		Action: Action{Reason: "broken"},
	}}}
	e := customEngine(set, config.Profile{})

	out := e.Evaluate(&models.Lead{Name: "Scholarship for everyone"}, testNow)
	if out.HardReject {
		t.Fatal("expected a rule with a broken pattern to never fire")
	}
	if len(out.Audit) != 1 || out.Audit[0].Fired {
		t.Fatalf("expected one unfired audit entry, got %+v", out.Audit)
	}
}

func TestEvaluateEffortGateIsStrict(t *testing.T) {
	gt := 70
	set := &RuleSet{SoftDowngrade: []Rule{{
		ID:     "S-EFFORT-001",
		Name:   "High effort",
		When:   When{EffortScore: &EffortWhen{Gt: &gt}},
		Action: Action{Reason: "high effort"},
	}}}
	e := customEngine(set, config.Profile{})

	at := &models.Lead{Name: "At the gate", EffortScore: 70}
	if out := e.Evaluate(at, testNow); len(out.MatchedRuleIDs) != 0 {
		t.Fatalf("expected effort 70 to stay under a gt 70 gate, got %v", out.MatchedRuleIDs)
	}

	over := &models.Lead{Name: "Over the gate", EffortScore: 71}
	if out := e.Evaluate(over, testNow); !hasRuleID(out.MatchedRuleIDs, "S-EFFORT-001") {
		t.Fatal("expected effort 71 to trip a gt 70 gate")
	}
}

func TestEvaluateHTTPStatusNeedsAStatus(t *testing.T) {
	set := &RuleSet{SoftDowngrade: []Rule{{
		ID:     "S-DEAD-001",
		Name:   "Dead page",
		When:   When{HTTPStatus: &HTTPStatusWhen{AnyOf: []int{404, 410}}},
		Action: Action{Reason: "page gone"},
	}}}
	e := customEngine(set, config.Profile{})

	unchecked := &models.Lead{Name: "Never fetched"}
	if out := e.Evaluate(unchecked, testNow); len(out.MatchedRuleIDs) != 0 {
		t.Fatal("expected no fire when the lead has no http status yet")
	}

	gone := &models.Lead{Name: "Gone", HTTPStatus: 404}
	if out := e.Evaluate(gone, testNow); !hasRuleID(out.MatchedRuleIDs, "S-DEAD-001") {
		t.Fatal("expected a 404 to trip the status gate")
	}
}

func TestEvaluateGtStudyStartMargin(t *testing.T) {
	set := &RuleSet{SoftDowngrade: []Rule{{
		ID:     "S-LATE-001",
		Name:   "Late deadline",
		When:   When{Deadline: &DeadlineWhen{GtStudyStart: true, SafetyMarginDays: 60}},
		Action: Action{Reason: "cuts it close"},
	}}}
	e := customEngine(set, config.Profile{StudyStart: "2026-09"})

	// study start 2026-09-01 minus 60 days puts the cutoff at 2026-07-03
	late := &models.Lead{Name: "Late", DeadlineDate: "2026-08-15"}
	if out := e.Evaluate(late, testNow); !hasRuleID(out.MatchedRuleIDs, "S-LATE-001") {
		t.Fatal("expected a deadline inside the safety margin to fire")
	}

	early := &models.Lead{Name: "Early", DeadlineDate: "2026-05-01"}
	if out := e.Evaluate(early, testNow); len(out.MatchedRuleIDs) != 0 {
		t.Fatalf("expected no fire for an early deadline, got %v", out.MatchedRuleIDs)
	}

	onCutoff := &models.Lead{Name: "On cutoff", DeadlineDate: "2026-07-03"}
	if out := e.Evaluate(onCutoff, testNow); len(out.MatchedRuleIDs) != 0 {
		t.Fatal("expected the cutoff day itself to stay outside the margin")
	}

	ownStart := &models.Lead{Name: "Own start", DeadlineDate: "2026-05-01", StudyStart: "2026-05"}
	if out := e.Evaluate(ownStart, testNow); !hasRuleID(out.MatchedRuleIDs, "S-LATE-001") {
		t.Fatal("expected the lead's own study start to override the profile")
	}
}

func TestEvaluateWatchlistAccumulatesAcrossSoftRules(t *testing.T) {
	set := &RuleSet{SoftDowngrade: []Rule{
		{
			ID:     "S-ONE-001",
			Name:   "First",
			When:   When{AnyRegex: []string{"alpha"}},
			Action: Action{Reason: "first", Watchlist: true, EffortAdd: 10},
		},
		{
			ID:     "S-TWO-001",
			Name:   "Second",
			When:   When{AnyRegex: []string{"beta"}},
			Action: Action{Reason: "second", EffortAdd: 5},
		},
	}}
	e := customEngine(set, config.Profile{})

	l := &models.Lead{Name: "Alpha Beta Award"}
	out := e.Evaluate(l, testNow)
	if !out.Watchlist {
		t.Fatal("expected the watchlist flag to stick once set")
	}
	if out.EffortAdd != 15 {
		t.Fatalf("expected effort adds to accumulate to 15, got %d", out.EffortAdd)
	}
	if len(out.SoftFlags) != 2 {
		t.Fatalf("expected two soft flags, got %v", out.SoftFlags)
	}
}
