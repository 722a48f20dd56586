package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/models"
)

// Container families seen across scholarship listings. The first family with
// a match on the page wins.
var selectorFamilies = []string{
	"article.scholarship",
	".scholarship-item",
	".funding-item",
	".phd-result",
	".award-item",
}

// Title elements probed inside a container, most specific first.
var titleSelectors = []string{"h1", "h2", "h3", "h4", "strong", "a"}

// Field hints probed inside a container for amount and deadline text.
var (
	amountSelectors   = []string{".amount", ".value", ".funding-amount", "dd.amount"}
	deadlineSelectors = []string{".deadline", ".closing-date", "time", "dd.deadline"}
)

// extractSelectors fills empty lead fields using per-family CSS heuristics.
// Returns how many fields it filled.
func extractSelectors(doc *goquery.Document, l *models.Lead, pageURL string) int {
	filled := 0

	fill := func(attr, family string, dst *string, selectors []string, scope *goquery.Selection) {
		if !models.NeedsValue(*dst) {
			return
		}
		for _, sel := range selectors {
			value := cleanText(scope.Find(sel).First().Text())
			if value == "" {
				continue
			}
			*dst = value
			filled++
			l.AddEvidence(models.ExtractionEvidence{
				Attribute: attr,
				Snippet:   truncateText(value, 160),
				Selector:  family + " " + sel,
				URL:       pageURL,
				Method:    models.MethodSelector,
			})
			return
		}
	}

	for _, family := range selectorFamilies {
		container := doc.Find(family).First()
		if container.Length() == 0 {
			continue
		}
		fill("name", family, &l.Name, titleSelectors, container)
		fill("amount", family, &l.Amount, amountSelectors, container)
		fill("deadline", family, &l.Deadline, deadlineSelectors, container)
		break
	}

	// Detail pages without a listing container still carry their title in h1.
	if models.NeedsValue(l.Name) {
		if title := cleanText(doc.Find("h1").First().Text()); title != "" {
			l.Name = title
			filled++
			l.AddEvidence(models.ExtractionEvidence{
				Attribute: "name",
				Snippet:   truncateText(title, 160),
				Selector:  "h1",
				URL:       pageURL,
				Method:    models.MethodSelector,
			})
		}
	}

	return filled
}
