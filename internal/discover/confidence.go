package discover

import (
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/david/scholarship-scout/internal/config"
)

// minCandidateConfidence is the emission gate for seeded discovery and the
// reject floor for heavy validation.
const minCandidateConfidence = 0.6

// fundingPaths are URL path fragments that strongly suggest a funding page.
var fundingPaths = []string{
	"/scholarship",
	"/funding",
	"/bursary",
	"/studentship",
	"/fees-funding",
	"/award",
	"/grant",
	"/financial-aid",
	"/financial-support",
}

// Scorer estimates how likely a discovered URL is to be a scholarship page
// before anything is fetched. Anchor text and page title come from the page
// the link was found on, so both may be empty for sitemap and feed hits.
type Scorer struct {
	funding []string
	guides  []*regexp.Regexp
}

func NewScorer(kw config.Keywords) *Scorer {
	s := &Scorer{}
	for _, k := range kw.Funding {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			s.funding = append(s.funding, k)
		}
	}
	for _, p := range kw.GuidePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Printf("[discover] ⚠️ guide pattern %q does not compile: %v", p, err)
			continue
		}
		s.guides = append(s.guides, re)
	}
	return s
}

// Score rates a candidate URL. It starts at zero, rewards funding signals in
// the path, anchor text, and page title, penalises guide-style pages, and
// clamps to [0,1]. The second return is a short human-readable breakdown.
func (s *Scorer) Score(rawURL, anchorText, pageTitle string) (float64, string) {
	score := 0.0
	var reasons []string

	if FundingPath(rawURL) {
		score += 0.5
		reasons = append(reasons, "funding path")
	}
	if s.matchesFunding(anchorText) {
		score += 0.3
		reasons = append(reasons, "anchor keyword")
	}
	if s.matchesFunding(pageTitle) {
		score += 0.2
		reasons = append(reasons, "title keyword")
	}
	if s.looksLikeGuide(rawURL) || s.looksLikeGuide(anchorText) {
		score -= 0.4
		reasons = append(reasons, "guide penalty")
	}

	return clampUnit(score), strings.Join(reasons, "; ")
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func (s *Scorer) matchesFunding(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, k := range s.funding {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (s *Scorer) looksLikeGuide(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range s.guides {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// FundingPath reports whether the URL's path looks like a funding page.
// The scrapers use the same whitelist to decide which links are worth
// following.
func FundingPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, frag := range fundingPaths {
		if strings.Contains(path, frag) {
			return true
		}
	}
	return false
}
