// Package rules evaluates the YAML triage rule set against leads. Rules run
// in three stages: hard rejects first, then soft downgrades, then positive
// scoring. A hard reject stops evaluation for that lead.
package rules

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/rules.yaml
var embeddedRulesYAML []byte

// Stage names, in evaluation order.
const (
	StageHardReject      = "hard_reject"
	StageSoftDowngrade   = "soft_downgrade"
	StagePositiveScoring = "positive_scoring"
)

// DeadlineWhen matches against the lead's parsed deadline. lt_today and
// gt_study_start need a parseable deadline; is_null matches the absence of
// one, including placeholder values like "check website".
type DeadlineWhen struct {
	LtToday          bool `yaml:"lt_today"`
	IsNull           bool `yaml:"is_null"`
	GtStudyStart     bool `yaml:"gt_study_start"`
	SafetyMarginDays int  `yaml:"safety_margin_days"`
}

// HTTPStatusWhen matches when the lead carries one of the listed codes.
type HTTPStatusWhen struct {
	AnyOf []int `yaml:"any_of"`
}

// EffortWhen matches on the lead's running effort score.
type EffortWhen struct {
	Gt *int `yaml:"gt"`
}

// When is the predicate block of a rule. Every predicate present must pass
// for the rule to fire; a rule with no predicates never fires.
type When struct {
	AnyRegex         []string        `yaml:"any_regex"`
	NotAnyRegex      []string        `yaml:"not_any_regex"`
	Deadline         *DeadlineWhen   `yaml:"deadline"`
	HTTPStatus       *HTTPStatusWhen `yaml:"http_status"`
	EffortScore      *EffortWhen     `yaml:"effort_score"`
	IsTaiwanEligible *bool           `yaml:"is_taiwan_eligible"`
}

// Action says what a fired rule does to the lead. Bucket is only honoured on
// hard-reject rules, where it may redirect the lead from C to X.
type Action struct {
	Bucket       string `yaml:"bucket"`
	Reason       string `yaml:"reason"`
	ScoreAdd     int    `yaml:"score_add"`
	EffortReduce int    `yaml:"effort_reduce"`
	EffortAdd    int    `yaml:"effort_add"`
	Watchlist    bool   `yaml:"watchlist"`
}

// Rule is one entry of the rule set. Stage is filled from the group the rule
// was parsed out of, not from the YAML.
type Rule struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Stage  string `yaml:"-"`
	When   When   `yaml:"when"`
	Action Action `yaml:"action"`

	anyRe     []*regexp.Regexp
	notAnyRe  []*regexp.Regexp
	anyBad    bool
	notAnyBad bool
}

// RuleSet is the parsed rules.yaml.
type RuleSet struct {
	HardReject      []Rule `yaml:"hard_reject_rules"`
	SoftDowngrade   []Rule `yaml:"soft_downgrade_rules"`
	PositiveScoring []Rule `yaml:"positive_scoring_rules"`
}

// Load reads path when it exists, the embedded default otherwise, and
// compiles every pattern. Patterns that do not compile are logged here, once,
// and the containing predicate can then never pass.
func Load(path string) (*RuleSet, error) {
	raw := embeddedRulesYAML
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			raw = data
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read rules config %s: %w", path, err)
		}
	}

	expanded := os.ExpandEnv(string(raw))
	var set RuleSet
	if err := yaml.Unmarshal([]byte(expanded), &set); err != nil {
		return nil, fmt.Errorf("failed to parse rules config: %w", err)
	}

	set.compile()
	return &set, nil
}

// Len counts the rules across all three stages.
func (s *RuleSet) Len() int {
	return len(s.HardReject) + len(s.SoftDowngrade) + len(s.PositiveScoring)
}

func (s *RuleSet) compile() {
	group := func(rules []Rule, stage string) {
		for i := range rules {
			r := &rules[i]
			r.Stage = stage
			r.anyRe, r.anyBad = compilePatterns(r.ID, "any_regex", r.When.AnyRegex)
			r.notAnyRe, r.notAnyBad = compilePatterns(r.ID, "not_any_regex", r.When.NotAnyRegex)
		}
	}
	group(s.HardReject, StageHardReject)
	group(s.SoftDowngrade, StageSoftDowngrade)
	group(s.PositiveScoring, StagePositiveScoring)
}

func compilePatterns(ruleID, field string, patterns []string) ([]*regexp.Regexp, bool) {
	var compiled []*regexp.Regexp
	bad := false
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Printf("[rules] ⚠️ rule %s: %s pattern %q does not compile: %v", ruleID, field, p, err)
			bad = true
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled, bad
}

func (w When) hasPredicate() bool {
	if len(w.AnyRegex) > 0 || len(w.NotAnyRegex) > 0 {
		return true
	}
	if w.Deadline != nil && (w.Deadline.LtToday || w.Deadline.IsNull || w.Deadline.GtStudyStart) {
		return true
	}
	if w.HTTPStatus != nil && len(w.HTTPStatus.AnyOf) > 0 {
		return true
	}
	if w.EffortScore != nil && w.EffortScore.Gt != nil {
		return true
	}
	return w.IsTaiwanEligible != nil
}

// Validate collects problems with the rule set. It is what the config linter
// surfaces, so the messages name the offending rule.
func (s *RuleSet) Validate() []string {
	var problems []string
	seen := map[string]string{}

	check := func(rules []Rule, stage string) {
		for i := range rules {
			r := &rules[i]
			label := r.ID
			if label == "" {
				label = fmt.Sprintf("%s[%d]", stage, i)
				problems = append(problems, fmt.Sprintf("%s has no id", label))
			}
			if prev, dup := seen[r.ID]; dup && r.ID != "" {
				problems = append(problems, fmt.Sprintf("rule id %s duplicated across %s and %s", r.ID, prev, stage))
			} else if r.ID != "" {
				seen[r.ID] = stage
			}
			if !r.When.hasPredicate() {
				problems = append(problems, fmt.Sprintf("rule %s has no predicates and can never fire", label))
			}
			for _, p := range append(append([]string{}, r.When.AnyRegex...), r.When.NotAnyRegex...) {
				if _, err := regexp.Compile(p); err != nil {
					problems = append(problems, fmt.Sprintf("rule %s pattern %q does not compile: %v", label, p, err))
				}
			}
			switch stage {
			case StageHardReject:
				if b := r.Action.Bucket; b != "" && b != "C" && b != "X" {
					problems = append(problems, fmt.Sprintf("rule %s: hard-reject bucket must be C or X, got %q", label, b))
				}
			default:
				if r.Action.Bucket != "" {
					problems = append(problems, fmt.Sprintf("rule %s: only hard-reject rules may set a bucket", label))
				}
			}
		}
	}

	check(s.HardReject, StageHardReject)
	check(s.SoftDowngrade, StageSoftDowngrade)
	check(s.PositiveScoring, StagePositiveScoring)
	return problems
}
