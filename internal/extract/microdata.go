package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/models"
)

// extractMicrodata fills empty lead fields from schema.org microdata scopes
// whose itemtype mentions Scholarship. Returns how many fields it filled.
func extractMicrodata(doc *goquery.Document, l *models.Lead, pageURL string) int {
	filled := 0

	doc.Find(`[itemscope][itemtype*='Scholarship']`).EachWithBreak(func(_ int, scope *goquery.Selection) bool {
		fill := func(attr string, dst *string, props ...string) {
			if !models.NeedsValue(*dst) {
				return
			}
			for _, prop := range props {
				value := itempropValue(scope, prop)
				if value == "" {
					continue
				}
				*dst = value
				filled++
				l.AddEvidence(models.ExtractionEvidence{
					Attribute: attr,
					Snippet:   truncateText(value, 160),
					Selector:  "[itemprop=" + prop + "]",
					URL:       pageURL,
					Method:    models.MethodMicrodata,
				})
				return
			}
		}

		fill("name", &l.Name, "name")
		fill("amount", &l.Amount, "value", "amount")
		fill("deadline", &l.Deadline, "applicationDeadline", "deadline")

		return models.NeedsValue(l.Name) || models.NeedsValue(l.Amount) || models.NeedsValue(l.Deadline)
	})

	return filled
}

// itempropValue reads an itemprop inside a scope, preferring the content or
// datetime attribute over element text the way meta and time tags carry it.
func itempropValue(scope *goquery.Selection, prop string) string {
	el := scope.Find(`[itemprop="` + prop + `"]`).First()
	if el.Length() == 0 {
		return ""
	}
	if content, ok := el.Attr("content"); ok && strings.TrimSpace(content) != "" {
		return cleanText(content)
	}
	if datetime, ok := el.Attr("datetime"); ok && strings.TrimSpace(datetime) != "" {
		return cleanText(datetime)
	}
	return cleanText(el.Text())
}
