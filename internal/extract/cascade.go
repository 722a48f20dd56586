package extract

import (
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
)

// Result summarises one cascade pass over a page.
type Result struct {
	FilledJSONLD    int
	FilledMicrodata int
	FilledSelector  int
	FilledRegex     int
}

func (r Result) Total() int {
	return r.FilledJSONLD + r.FilledMicrodata + r.FilledSelector + r.FilledRegex
}

// Apply runs the extraction cascade over a parsed page. Steps run in fixed
// order and each only fills fields that are still empty or carry a
// placeholder; later steps never overwrite earlier ones.
func Apply(doc *goquery.Document, l *models.Lead, pageURL string) Result {
	res := Result{}
	if doc == nil {
		return res
	}

	res.FilledJSONLD = extractJSONLD(doc, l, pageURL)
	res.FilledMicrodata = extractMicrodata(doc, l, pageURL)
	res.FilledSelector = extractSelectors(doc, l, pageURL)
	res.FilledRegex = extractRegex(cleanText(doc.Find("body").Text()), l, pageURL)

	UpdateStructuredDates(l)

	if res.Total() > 0 {
		log.Printf("[extract] %s: filled %d fields (jsonld=%d microdata=%d selector=%d regex=%d)",
			pageURL, res.Total(), res.FilledJSONLD, res.FilledMicrodata, res.FilledSelector, res.FilledRegex)
	}
	return res
}

// ApplyHTML parses raw HTML and runs the cascade.
func ApplyHTML(html string, l *models.Lead, pageURL string) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Printf("[extract] ⚠️ failed to parse %s: %v", pageURL, err)
		return Result{}
	}
	return Apply(doc, l, pageURL)
}

// UpdateStructuredDates derives deadline_date and deadline_confidence from
// whatever the cascade left in the freeform deadline.
func UpdateStructuredDates(l *models.Lead) {
	if l.DeadlineDate != "" {
		if l.DeadlineConfidence == "" {
			l.DeadlineConfidence = models.DeadlineConfirmed
		}
		return
	}

	cleaned := stripDeadlinePrefix(l.Deadline)
	if t, ok := leads.ParseDeadline(cleaned); ok {
		l.DeadlineDate = t.Format("2006-01-02")
		l.DeadlineConfidence = models.DeadlineConfirmed
		return
	}

	switch {
	case tbdRegex.MatchString(l.Deadline):
		if l.DeadlineLabel != "" {
			l.DeadlineConfidence = models.DeadlineEstimated
		} else {
			l.DeadlineConfidence = models.DeadlineTBD
		}
	case l.DeadlineLabel != "":
		l.DeadlineConfidence = models.DeadlineEstimated
	case models.NeedsValue(l.Deadline):
		if l.DeadlineConfidence == "" {
			l.DeadlineConfidence = models.DeadlineUnknown
		}
	default:
		// A freeform value we could not parse, e.g. "Summer 2026".
		l.DeadlineConfidence = models.DeadlineEstimated
	}
}

// Weak reports whether extraction left the lead without usable substance:
// no name, or a name with neither amount nor deadline behind it. The JS
// detector keys off this.
func Weak(l *models.Lead) bool {
	if models.NeedsValue(l.Name) {
		return true
	}
	return models.NeedsValue(l.Amount) && models.NeedsValue(l.Deadline)
}
