package extract

import (
	"regexp"
	"strings"

	"github.com/david/scholarship-scout/internal/models"
)

const evidenceRadius = 80

// Amount patterns, symbol-prefixed first, then code-suffixed. Ranges like
// "£1,000 - £5,000" and "up to €10.000" are captured whole so the lead keeps
// the page's own phrasing.
var amountRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:up to\s+)?[£$€]\s?\d[\d,.]*(?:\s?(?:-|–|to)\s?[£$€]?\s?\d[\d,.]*)?(?:\s?(?:per year|per annum|p\.a\.))?`),
	regexp.MustCompile(`(?i)(?:up to\s+)?\d[\d,.]*\s?(?:GBP|USD|EUR)\b(?:\s?(?:per year|per annum|p\.a\.))?`),
}

// Deadline patterns in priority order: ISO, slashed numeric, month-name forms.
var deadlineRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+20\d{2}\b`),
}

// Keywords that anchor a deadline mention. A dated phrase near one of these
// beats the first date on the page.
var deadlineContextRegex = regexp.MustCompile(`(?i)(?:deadline|closing date|apply by|applications? close|applications? due|due date|closes on)`)

var (
	tbdRegex    = regexp.MustCompile(`(?i)\b(?:TBD|TBA|to be (?:determined|announced|confirmed))\b`)
	seasonRegex = regexp.MustCompile(`(?i)\b(Spring|Summer|Autumn|Fall|Winter)\s+(20\d{2})\b`)
)

// extractRegex is the last cascade step: scan visible page text for amount
// and deadline phrases. Returns how many fields it filled.
func extractRegex(text string, l *models.Lead, pageURL string) int {
	filled := 0

	if models.NeedsValue(l.Amount) {
		for _, re := range amountRegexes {
			loc := re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			l.Amount = cleanText(text[loc[0]:loc[1]])
			filled++
			l.AddEvidence(models.ExtractionEvidence{
				Attribute: "amount",
				Snippet:   snippetAround(text, loc[0], loc[1], evidenceRadius),
				URL:       pageURL,
				Method:    models.MethodRegex,
			})
			break
		}
	}

	if models.NeedsValue(l.Deadline) {
		if value, start, end := findDeadline(text); value != "" {
			l.Deadline = value
			filled++
			l.AddEvidence(models.ExtractionEvidence{
				Attribute: "deadline",
				Snippet:   snippetAround(text, start, end, evidenceRadius),
				URL:       pageURL,
				Method:    models.MethodRegex,
			})
		} else if loc := tbdRegex.FindStringIndex(text); loc != nil {
			l.Deadline = "TBD"
			l.DeadlineConfidence = models.DeadlineTBD
			filled++
			if season := seasonRegex.FindString(text); season != "" {
				l.DeadlineLabel = cleanText(season)
				l.DeadlineConfidence = models.DeadlineEstimated
			}
			l.AddEvidence(models.ExtractionEvidence{
				Attribute: "deadline",
				Snippet:   snippetAround(text, loc[0], loc[1], evidenceRadius),
				URL:       pageURL,
				Method:    models.MethodRegex,
			})
		}
	}

	return filled
}

// findDeadline prefers a date within reach of a deadline keyword; failing
// that it takes the first date on the page.
func findDeadline(text string) (string, int, int) {
	if ctx := deadlineContextRegex.FindStringIndex(text); ctx != nil {
		windowEnd := ctx[1] + 120
		if windowEnd > len(text) {
			windowEnd = len(text)
		}
		window := text[ctx[1]:windowEnd]
		for _, re := range deadlineRegexes {
			if loc := re.FindStringIndex(window); loc != nil {
				start := ctx[1] + loc[0]
				end := ctx[1] + loc[1]
				return cleanText(text[start:end]), start, end
			}
		}
	}

	for _, re := range deadlineRegexes {
		if loc := re.FindStringIndex(text); loc != nil {
			return cleanText(text[loc[0]:loc[1]]), loc[0], loc[1]
		}
	}
	return "", 0, 0
}

// stripDeadlinePrefix removes label prefixes like "Deadline:" before parsing.
func stripDeadlinePrefix(s string) string {
	prefixes := []string{"closing date:", "deadline:", "apply by:", "due date:", "closes on:"}
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(lower, p); idx != -1 {
			s = s[idx+len(p):]
			lower = lower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}
