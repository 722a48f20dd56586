package models

import (
	"fmt"
	"strings"
	"time"
)

// Action buckets assigned by triage.
const (
	BucketApply    = "A" // apply now
	BucketPrepare  = "B" // prepare
	BucketRejected = "C" // rejected
	BucketMissed   = "X" // deadline passed
)

// Trust tiers, best to worst. S is an official university or government
// page, A a major foundation, B an aggregator, C needs verification.
const (
	TierS = "S"
	TierA = "A"
	TierB = "B"
	TierC = "C"
)

// TierRank maps a trust tier to a comparable rank; higher is better.
func TierRank(tier string) int {
	switch tier {
	case TierS:
		return 4
	case TierA:
		return 3
	case TierB:
		return 2
	case TierC:
		return 1
	}
	return 0
}

// Deadline confidence labels.
const (
	DeadlineConfirmed = "confirmed"
	DeadlineEstimated = "estimated"
	DeadlineTBD       = "TBD"
	DeadlineUnknown   = "unknown"
)

// Source types a lead can originate from.
const (
	SourceUniversity = "university"
	SourceGovernment = "government"
	SourceThirdParty = "third_party"
	SourceFoundation = "foundation"
	SourceBrowser    = "browser_extracted"
	SourceAPI        = "api_extracted"
)

// Extraction method tokens recorded in evidence entries.
const (
	MethodJSONLD    = "json-ld"
	MethodMicrodata = "schema.org"
	MethodSelector  = "selector"
	MethodRegex     = "regex"
	MethodAPIDirect = "api_direct"
	MethodBrowser   = "browser"
	MethodPDF       = "pdf"
)

// Lead tags used across the pipeline.
const (
	TagPendingBrowser    = "pending_browser"
	TagNeedsVerification = "needs_verification"
	TagInvalidStatus     = "invalid_status"
	TagNoFundingContent  = "no_funding_content"
)

// TriState is a three-valued boolean for facts that may be unconfirmed.
// It marshals to JSON true / false / null.
type TriState int

const (
	TriUnknown TriState = iota
	TriTrue
	TriFalse
)

func (t TriState) Known() bool { return t == TriTrue || t == TriFalse }

func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case TriTrue:
		return []byte("true"), nil
	case TriFalse:
		return []byte("false"), nil
	}
	return []byte("null"), nil
}

func (t *TriState) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true":
		*t = TriTrue
	case "false":
		*t = TriFalse
	case "null", `""`:
		*t = TriUnknown
	default:
		return fmt.Errorf("invalid tri-state value %q", string(data))
	}
	return nil
}

// ExtractionEvidence records where a single lead attribute came from.
type ExtractionEvidence struct {
	Attribute string `json:"attribute"`
	Snippet   string `json:"snippet,omitempty"`
	Selector  string `json:"selector,omitempty"`
	URL       string `json:"url,omitempty"`
	Method    string `json:"method"`
}

// Lead is the central entity: one record per distinct scholarship.
type Lead struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	CanonicalURL string `json:"canonical_url,omitempty"`
	SourceDomain string `json:"source_domain,omitempty"`
	Source       string `json:"source,omitempty"`
	SourceType   string `json:"source_type,omitempty"`

	Amount             string   `json:"amount,omitempty"`
	Deadline           string   `json:"deadline,omitempty"`
	DeadlineDate       string   `json:"deadline_date,omitempty"` // ISO yyyy-mm-dd
	DeadlineLabel      string   `json:"deadline_label,omitempty"`
	DeadlineConfidence string   `json:"deadline_confidence,omitempty"`
	IntakeYear         string   `json:"intake_year,omitempty"`
	StudyStart         string   `json:"study_start,omitempty"` // ISO month yyyy-mm
	Eligibility        []string `json:"eligibility,omitempty"`
	EligibleCountries  []string `json:"eligible_countries,omitempty"`
	IsTaiwanEligible   TriState `json:"is_taiwan_eligible"`
	Notes              string   `json:"notes,omitempty"`
	Tags               []string `json:"tags,omitempty"`

	TrustTier  string  `json:"trust_tier,omitempty"`
	Confidence float64 `json:"confidence"`
	HTTPStatus int     `json:"http_status,omitempty"`

	Bucket          string   `json:"bucket,omitempty"`
	MatchScore      int      `json:"match_score"`
	EffortScore     int      `json:"effort_score"`
	MatchReasons    []string `json:"match_reasons,omitempty"`
	HardFailReasons []string `json:"hard_fail_reasons,omitempty"`
	SoftFlags       []string `json:"soft_flags,omitempty"`
	RiskFlags       []string `json:"risk_flags,omitempty"`
	MatchedRuleIDs  []string `json:"matched_rule_ids,omitempty"`
	Watchlist       bool     `json:"watchlist,omitempty"`

	ExtractionEvidence []ExtractionEvidence `json:"extraction_evidence,omitempty"`
	FirstSeenAt        time.Time            `json:"first_seen_at"`
	LastCheckedAt      time.Time            `json:"last_checked_at"`
	CheckCount         int                  `json:"check_count"`
	IsIndexOnly        bool                 `json:"is_index_only,omitempty"`
	IsDirectoryPage    bool                 `json:"is_directory_page,omitempty"`
	OfficialSourceURL  string               `json:"official_source_url,omitempty"`
}

// NeedsValue reports whether a lead field is still unfilled: empty or one of
// the placeholder strings scrapers leave behind.
func NeedsValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "see website", "check website":
		return true
	}
	return false
}

func (l *Lead) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (l *Lead) AddTag(tag string) {
	if tag == "" || l.HasTag(tag) {
		return
	}
	l.Tags = append(l.Tags, tag)
}

func (l *Lead) RemoveTag(tag string) {
	kept := l.Tags[:0]
	for _, t := range l.Tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	l.Tags = kept
	if len(l.Tags) == 0 {
		l.Tags = nil
	}
}

// AddEvidence appends one evidence entry. Evidence is append-only within a
// run; nothing ever rewrites or removes prior entries.
func (l *Lead) AddEvidence(ev ExtractionEvidence) {
	l.ExtractionEvidence = append(l.ExtractionEvidence, ev)
}
