// Package triage assigns each lead an action bucket from the rules outcome,
// deadline proximity and confidence, then orders the set by a comprehensive
// score so reports read best-first.
package triage

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
	"github.com/david/scholarship-scout/internal/rules"
)

// Confidence component weights. Deadline quality dominates because a lead
// without a date cannot be scheduled.
const (
	weightDeadline    = 0.30
	weightEligibility = 0.25
	weightTier        = 0.20
	weightHTTP        = 0.15
	weightAmount      = 0.10
)

// Bucket thresholds.
const (
	applyWindowDays   = 30
	prepareWindowDays = 90
	applyConfidence   = 0.7
	prepareConfidence = 0.5
)

// amountCap is where award value stops adding to the comprehensive score.
const amountCap = 50000

// Triager runs rule evaluation and bucket assignment over a lead set.
// Now is fixed in tests; zero means wall clock.
type Triager struct {
	Engine *rules.Engine
	Now    time.Time
}

func New(engine *rules.Engine) *Triager {
	return &Triager{Engine: engine}
}

func (t *Triager) now() time.Time {
	if t.Now.IsZero() {
		return time.Now().UTC()
	}
	return t.Now
}

// Run triages every lead in place, sorts the set and returns the rule audit
// trail in evaluation order.
func (t *Triager) Run(ls []models.Lead) []rules.AuditEntry {
	now := t.now()
	var audit []rules.AuditEntry
	for i := range ls {
		out := t.Engine.Evaluate(&ls[i], now)
		audit = append(audit, out.Audit...)
		Apply(&ls[i], out, now)
	}
	SortLeads(ls, now)
	return audit
}

// Apply folds one rules outcome into the lead and assigns its bucket. The
// confidence is computed first when nothing upstream set it.
func Apply(l *models.Lead, out rules.Outcome, now time.Time) {
	if l.Confidence == 0 {
		l.Confidence = Confidence(l)
	}

	l.MatchScore += out.ScoreAdd
	l.EffortScore = clamp(l.EffortScore-out.EffortReduce+out.EffortAdd, 0, 100)
	l.MatchReasons = append(l.MatchReasons, out.MatchReasons...)
	l.HardFailReasons = append(l.HardFailReasons, out.HardReasons...)
	l.SoftFlags = append(l.SoftFlags, out.SoftFlags...)
	l.MatchedRuleIDs = append(l.MatchedRuleIDs, out.MatchedRuleIDs...)

	l.Bucket = bucketFor(l, out, now)

	l.Watchlist = false
	if !out.HardReject {
		l.Watchlist = out.Watchlist || watchlistEligible(l)
	}
}

func bucketFor(l *models.Lead, out rules.Outcome, now time.Time) string {
	deadline, parsed := leads.DeadlineOf(l.DeadlineDate, l.Deadline)
	days := 0
	if parsed {
		days = leads.DaysUntil(deadline, now)
	}

	switch {
	case parsed && days < 0:
		// a missed deadline outranks every rule verdict
		return models.BucketMissed
	case out.HardReject:
		return out.Bucket
	case out.Bucket == models.BucketPrepare:
		// a soft downgrade pins the lead to B
		return models.BucketPrepare
	case parsed && days <= applyWindowDays && l.Confidence >= applyConfidence:
		return models.BucketApply
	case parsed && days <= prepareWindowDays, l.Confidence >= prepareConfidence:
		return models.BucketPrepare
	case !parsed && l.Confidence >= applyConfidence:
		return models.BucketPrepare
	default:
		return models.BucketRejected
	}
}

// Confidence is the weighted completeness sum over deadline quality,
// eligibility data, trust tier, http status and amount.
func Confidence(l *models.Lead) float64 {
	c := weightDeadline*deadlineQuality(l) +
		weightEligibility*eligibilityQuality(l) +
		weightTier*tierQuality(l) +
		weightHTTP*httpQuality(l) +
		weightAmount*amountQuality(l)
	if c > 1 {
		c = 1
	}
	return c
}

func deadlineQuality(l *models.Lead) float64 {
	if _, ok := leads.DeadlineOf(l.DeadlineDate, l.Deadline); ok {
		if l.DeadlineConfidence == models.DeadlineConfirmed {
			return 1.0
		}
		return 0.9
	}
	if !rules.DeadlineIsNull(l) {
		// a label like "TBD (Summer 2026)" still narrows the window
		return 0.4
	}
	return 0
}

func eligibilityQuality(l *models.Lead) float64 {
	if l.IsTaiwanEligible.Known() {
		return 1.0
	}
	if len(l.Eligibility) > 0 || len(l.EligibleCountries) > 0 {
		return 0.7
	}
	return 0
}

func tierQuality(l *models.Lead) float64 {
	return float64(models.TierRank(l.TrustTier)) / 4
}

func httpQuality(l *models.Lead) float64 {
	switch {
	case l.HTTPStatus >= 200 && l.HTTPStatus < 300:
		return 1.0
	case l.HTTPStatus >= 300 && l.HTTPStatus < 400:
		return 0.7
	case l.HTTPStatus == 0:
		// not fetched yet, neither good nor bad
		return 0.5
	default:
		return 0
	}
}

func amountQuality(l *models.Lead) float64 {
	if models.NeedsValue(l.Amount) {
		return 0
	}
	return 1.0
}

// watchlistEligible reports whether the lead should be revisited later: no
// usable deadline, or a rolling/annual/TBD label in place of one.
func watchlistEligible(l *models.Lead) bool {
	if rules.DeadlineIsNull(l) {
		return true
	}
	if _, ok := leads.DeadlineOf(l.DeadlineDate, l.Deadline); ok {
		return false
	}
	label := strings.ToLower(l.Deadline + " " + l.DeadlineLabel)
	if strings.Contains(label, "rolling") || strings.Contains(label, "annual") || strings.Contains(label, "tbd") {
		return true
	}
	return l.DeadlineConfidence == models.DeadlineTBD || l.DeadlineConfidence == models.DeadlineUnknown
}

var amountNumber = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// AmountValue pulls the first number out of a freeform amount string.
func AmountValue(s string) float64 {
	m := amountNumber.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// ComprehensiveScore orders leads inside a bucket: match score, capped award
// value, deadline urgency and source reliability.
func ComprehensiveScore(l *models.Lead, now time.Time) float64 {
	amount := AmountValue(l.Amount) / amountCap
	if amount > 1 {
		amount = 1
	}
	return float64(l.MatchScore) + amount*100 +
		float64(UrgencyPoints(l, now)) + float64(ReliabilityPoints(l.SourceType))
}

// UrgencyPoints is the stepwise deadline proximity bonus.
func UrgencyPoints(l *models.Lead, now time.Time) int {
	deadline, ok := leads.DeadlineOf(l.DeadlineDate, l.Deadline)
	if !ok {
		return 0
	}
	days := leads.DaysUntil(deadline, now)
	switch {
	case days < 0:
		return -100
	case days <= 30:
		return 100
	case days <= 60:
		return 50
	case days <= 90:
		return 25
	case days <= 180:
		return 10
	default:
		return 0
	}
}

// ReliabilityPoints grades the source type a lead came from.
func ReliabilityPoints(sourceType string) int {
	switch sourceType {
	case models.SourceUniversity:
		return 50
	case models.SourceGovernment:
		return 40
	case models.SourceFoundation, "ngo":
		return 30
	case "enterprise":
		return 20
	case "web3":
		return 10
	default:
		return 0
	}
}

var bucketOrder = map[string]int{
	models.BucketApply:    0,
	models.BucketPrepare:  1,
	models.BucketRejected: 2,
	models.BucketMissed:   3,
}

// SortLeads orders by bucket, then comprehensive score descending, with
// urgency and reliability as tie-breakers and the name as a stable anchor.
func SortLeads(ls []models.Lead, now time.Time) {
	sort.SliceStable(ls, func(i, j int) bool {
		a, b := &ls[i], &ls[j]
		if ra, rb := bucketRank(a.Bucket), bucketRank(b.Bucket); ra != rb {
			return ra < rb
		}
		if sa, sb := ComprehensiveScore(a, now), ComprehensiveScore(b, now); sa != sb {
			return sa > sb
		}
		if ua, ub := UrgencyPoints(a, now), UrgencyPoints(b, now); ua != ub {
			return ua > ub
		}
		if pa, pb := ReliabilityPoints(a.SourceType), ReliabilityPoints(b.SourceType); pa != pb {
			return pa > pb
		}
		return a.Name < b.Name
	})
}

func bucketRank(bucket string) int {
	if r, ok := bucketOrder[bucket]; ok {
		return r
	}
	return len(bucketOrder)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
