package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
)

const defaultSafetyMarginDays = 60

// nullDeadlineValues are the placeholders that count as "no deadline".
// Matching is exact after trimming and lowercasing, so a label like
// "TBD (Summer 2026)" still carries information and is not null.
var nullDeadlineValues = map[string]bool{
	"":              true,
	"tbd":           true,
	"unknown":       true,
	"check website": true,
	"see website":   true,
}

// AuditEntry records one rule evaluation. Every evaluated rule produces an
// entry, fired or not, so the audit shows what was considered.
type AuditEntry struct {
	LeadName string `json:"lead_name"`
	LeadURL  string `json:"lead_url"`
	RuleID   string `json:"rule_id"`
	Stage    string `json:"stage"`
	Fired    bool   `json:"fired"`
	Detail   string `json:"detail,omitempty"`
}

// Outcome is what one evaluation pass decided about a lead. Triage applies
// it; the engine never mutates the lead itself.
type Outcome struct {
	HardReject     bool
	HardReasons    []string
	Bucket         string
	ScoreAdd       int
	EffortReduce   int
	EffortAdd      int
	MatchReasons   []string
	SoftFlags      []string
	MatchedRuleIDs []string
	Watchlist      bool
	Audit          []AuditEntry
}

// Engine evaluates a compiled rule set against leads.
type Engine struct {
	Set     *RuleSet
	Profile config.Profile
}

func NewEngine(set *RuleSet, profile config.Profile) *Engine {
	return &Engine{Set: set, Profile: profile}
}

// SearchText builds the haystack the regex predicates run against: name,
// amount, notes, eligibility lines, URL and source, lowercased.
func SearchText(l *models.Lead) string {
	parts := []string{l.Name, l.Amount, l.Notes}
	parts = append(parts, l.Eligibility...)
	parts = append(parts, l.URL, l.Source)
	return strings.ToLower(strings.Join(parts, " "))
}

// DeadlineIsNull reports whether a lead has no usable deadline value at all.
func DeadlineIsNull(l *models.Lead) bool {
	if l.DeadlineDate != "" {
		return false
	}
	return nullDeadlineValues[strings.ToLower(strings.TrimSpace(l.Deadline))]
}

// Evaluate runs the three stages in order. The first hard reject that fires
// stops evaluation; soft and positive rules all run and accumulate.
func (e *Engine) Evaluate(l *models.Lead, now time.Time) Outcome {
	var out Outcome
	text := SearchText(l)

	for i := range e.Set.HardReject {
		r := &e.Set.HardReject[i]
		fired, detail := e.fires(r, l, text, now)
		out.Audit = append(out.Audit, auditEntry(l, r, fired, detail))
		if !fired {
			continue
		}
		out.HardReject = true
		out.Bucket = models.BucketRejected
		if r.Action.Bucket == models.BucketMissed {
			out.Bucket = models.BucketMissed
		}
		out.HardReasons = append(out.HardReasons, fmt.Sprintf("%s: %s", r.ID, reasonOf(r)))
		out.MatchedRuleIDs = append(out.MatchedRuleIDs, r.ID)
		return out
	}

	for i := range e.Set.SoftDowngrade {
		r := &e.Set.SoftDowngrade[i]
		fired, detail := e.fires(r, l, text, now)
		out.Audit = append(out.Audit, auditEntry(l, r, fired, detail))
		if !fired {
			continue
		}
		out.Bucket = models.BucketPrepare
		out.ScoreAdd += r.Action.ScoreAdd
		out.EffortReduce += r.Action.EffortReduce
		out.EffortAdd += r.Action.EffortAdd
		if r.Action.Watchlist {
			out.Watchlist = true
		}
		out.SoftFlags = append(out.SoftFlags, fmt.Sprintf("%s: %s", r.ID, reasonOf(r)))
		out.MatchedRuleIDs = append(out.MatchedRuleIDs, r.ID)
	}

	for i := range e.Set.PositiveScoring {
		r := &e.Set.PositiveScoring[i]
		fired, detail := e.fires(r, l, text, now)
		out.Audit = append(out.Audit, auditEntry(l, r, fired, detail))
		if !fired {
			continue
		}
		out.ScoreAdd += r.Action.ScoreAdd
		out.EffortReduce += r.Action.EffortReduce
		out.EffortAdd += r.Action.EffortAdd
		if r.Action.Watchlist {
			out.Watchlist = true
		}
		out.MatchReasons = append(out.MatchReasons, reasonOf(r))
		out.MatchedRuleIDs = append(out.MatchedRuleIDs, r.ID)
	}

	return out
}

func reasonOf(r *Rule) string {
	if r.Action.Reason != "" {
		return r.Action.Reason
	}
	return r.Name
}

func auditEntry(l *models.Lead, r *Rule, fired bool, detail string) AuditEntry {
	entry := AuditEntry{
		LeadName: l.Name,
		LeadURL:  l.URL,
		RuleID:   r.ID,
		Stage:    r.Stage,
		Fired:    fired,
	}
	if fired {
		entry.Detail = detail
	}
	return entry
}

// fires checks every predicate the rule specifies; all must pass. A rule with
// no predicates, or with a broken pattern, never fires. The detail names what
// clinched the match.
func (e *Engine) fires(r *Rule, l *models.Lead, text string, now time.Time) (bool, string) {
	if !r.When.hasPredicate() {
		return false, ""
	}

	var details []string

	if len(r.When.AnyRegex) > 0 {
		if r.anyBad {
			return false, ""
		}
		matched := ""
		for _, re := range r.anyRe {
			if re.MatchString(text) {
				matched = re.String()
				break
			}
		}
		if matched == "" {
			return false, ""
		}
		details = append(details, fmt.Sprintf("matched %q", matched))
	}

	if len(r.When.NotAnyRegex) > 0 {
		if r.notAnyBad {
			return false, ""
		}
		for _, re := range r.notAnyRe {
			if re.MatchString(text) {
				return false, ""
			}
		}
	}

	if d := r.When.Deadline; d != nil && (d.LtToday || d.IsNull || d.GtStudyStart) {
		ok, detail := e.deadlineMatches(d, l, now)
		if !ok {
			return false, ""
		}
		details = append(details, detail)
	}

	if h := r.When.HTTPStatus; h != nil && len(h.AnyOf) > 0 {
		if l.HTTPStatus == 0 {
			return false, ""
		}
		found := false
		for _, code := range h.AnyOf {
			if l.HTTPStatus == code {
				found = true
				break
			}
		}
		if !found {
			return false, ""
		}
		details = append(details, fmt.Sprintf("http status %d", l.HTTPStatus))
	}

	if ef := r.When.EffortScore; ef != nil && ef.Gt != nil {
		if l.EffortScore <= *ef.Gt {
			return false, ""
		}
		details = append(details, fmt.Sprintf("effort %d above %d", l.EffortScore, *ef.Gt))
	}

	if tw := r.When.IsTaiwanEligible; tw != nil {
		want := models.TriFalse
		if *tw {
			want = models.TriTrue
		}
		if l.IsTaiwanEligible != want {
			return false, ""
		}
		details = append(details, fmt.Sprintf("taiwan eligibility confirmed %v", *tw))
	}

	detail := strings.Join(details, "; ")
	if detail == "" {
		detail = "predicates passed"
	}
	return true, detail
}

// deadlineMatches handles the deadline predicate block. Every flag set on the
// block must hold.
func (e *Engine) deadlineMatches(d *DeadlineWhen, l *models.Lead, now time.Time) (bool, string) {
	var details []string

	if d.IsNull {
		if !DeadlineIsNull(l) {
			return false, ""
		}
		details = append(details, "no deadline on record")
	}

	deadline, parsed := leads.DeadlineOf(l.DeadlineDate, l.Deadline)

	if d.LtToday {
		if !parsed || leads.DaysUntil(deadline, now) >= 0 {
			return false, ""
		}
		details = append(details, fmt.Sprintf("deadline %s already passed", deadline.Format("2006-01-02")))
	}

	if d.GtStudyStart {
		if !parsed {
			return false, ""
		}
		start, ok := e.studyStart(l)
		if !ok {
			return false, ""
		}
		margin := d.SafetyMarginDays
		if margin <= 0 {
			margin = defaultSafetyMarginDays
		}
		if !deadline.After(start.AddDate(0, 0, -margin)) {
			return false, ""
		}
		details = append(details, fmt.Sprintf("deadline %s is within %d days of study start", deadline.Format("2006-01-02"), margin))
	}

	return true, strings.Join(details, "; ")
}

// studyStart parses the lead's study start month, falling back to the
// profile. The first of the month stands in for the start date.
func (e *Engine) studyStart(l *models.Lead) (time.Time, bool) {
	for _, raw := range []string{l.StudyStart, e.Profile.StudyStart} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse("2006-01", raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
