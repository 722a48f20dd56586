package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	set, err := Load("")
	if err != nil {
		t.Fatalf("load embedded defaults: %v", err)
	}
	if len(set.HardReject) == 0 || len(set.SoftDowngrade) == 0 || len(set.PositiveScoring) == 0 {
		t.Fatalf("expected rules in all three stages, got %d/%d/%d",
			len(set.HardReject), len(set.SoftDowngrade), len(set.PositiveScoring))
	}
	if problems := set.Validate(); len(problems) != 0 {
		t.Fatalf("default rule set does not validate: %v", problems)
	}
	for _, r := range set.HardReject {
		if r.Stage != StageHardReject {
			t.Fatalf("expected stage %s on %s, got %q", StageHardReject, r.ID, r.Stage)
		}
	}
	for _, r := range set.PositiveScoring {
		if r.Stage != StagePositiveScoring {
			t.Fatalf("expected stage %s on %s, got %q", StagePositiveScoring, r.ID, r.Stage)
		}
	}
}

func TestLoadOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	override := `hard_reject_rules:
  - id: E-TEST-001
    name: Test reject
    when:
      any_regex: ["forbidden"]
    action:
      reason: test
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("load override: %v", err)
	}
	if len(set.HardReject) != 1 || set.HardReject[0].ID != "E-TEST-001" {
		t.Fatalf("expected only the override rule, got %d hard rules", len(set.HardReject))
	}
	if len(set.SoftDowngrade) != 0 || len(set.PositiveScoring) != 0 {
		t.Fatal("expected the override to replace the defaults entirely")
	}
}

func TestLoadMissingOverrideFallsBackToDefaults(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load with missing override: %v", err)
	}
	if len(set.HardReject) == 0 {
		t.Fatal("expected the embedded defaults when the override path does not exist")
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("RULES_TEST_WORD", "forbidden")
	path := filepath.Join(t.TempDir(), "rules.yaml")
	override := `hard_reject_rules:
  - id: E-ENV-001
    name: Env expanded
    when:
      any_regex: ["${RULES_TEST_WORD}"]
    action:
      reason: test
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("load override: %v", err)
	}
	if got := set.HardReject[0].When.AnyRegex[0]; got != "forbidden" {
		t.Fatalf("expected env expansion to yield %q, got %q", "forbidden", got)
	}
}

func TestValidateCatchesProblems(t *testing.T) {
	set := &RuleSet{
		HardReject: []Rule{
			{ID: "E-DUP-001", When: When{AnyRegex: []string{"ok"}}, Action: Action{Bucket: "B"}},
			{ID: "E-DUP-001", When: When{AnyRegex: []string{"("}}},
		},
		SoftDowngrade: []Rule{
			{ID: "S-EMPTY-001"},
			{ID: "S-BUCKET-001", When: When{AnyRegex: []string{"x"}}, Action: Action{Bucket: "C"}},
		},
	}

	problems := set.Validate()
	wants := []string{
		"duplicated",
		"no predicates",
		"does not compile",
		"bucket must be C or X",
		"only hard-reject rules may set a bucket",
	}
	for _, want := range wants {
		found := false
		for _, p := range problems {
			if strings.Contains(p, want) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected a problem containing %q, got %v", want, problems)
		}
	}
}

func TestValidateAcceptsMissedBucket(t *testing.T) {
	set := &RuleSet{
		HardReject: []Rule{
			{ID: "E-X-001", When: When{Deadline: &DeadlineWhen{LtToday: true}}, Action: Action{Bucket: "X"}},
		},
	}
	if problems := set.Validate(); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}
