package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/models"
)

// Structured-data types recognised as scholarship records.
var jsonldTypes = map[string]bool{
	"scholarship":      true,
	"financialproduct": true,
}

// extractJSONLD fills empty lead fields from <script type="application/ld+json">
// blocks. Objects are walked recursively so @graph wrappers and nested
// entities are found. Returns how many fields it filled.
func extractJSONLD(doc *goquery.Document, l *models.Lead, pageURL string) int {
	filled := 0

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var payload interface{}
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return true
		}

		var nodes []map[string]interface{}
		collectTypedNodes(payload, &nodes)
		for _, node := range nodes {
			filled += fillFromNode(node, l, pageURL)
		}
		// Stop once the cascade has nothing left to fill.
		return models.NeedsValue(l.Name) || models.NeedsValue(l.Amount) || models.NeedsValue(l.Deadline)
	})

	return filled
}

// collectTypedNodes walks arbitrary JSON and gathers every object whose
// @type matches a scholarship type. No reflection, just type switches.
func collectTypedNodes(v interface{}, out *[]map[string]interface{}) {
	switch node := v.(type) {
	case map[string]interface{}:
		if matchesJSONLDType(node["@type"]) {
			*out = append(*out, node)
		}
		for _, child := range node {
			collectTypedNodes(child, out)
		}
	case []interface{}:
		for _, item := range node {
			collectTypedNodes(item, out)
		}
	}
}

func matchesJSONLDType(t interface{}) bool {
	switch typed := t.(type) {
	case string:
		return jsonldTypes[strings.ToLower(typed)]
	case []interface{}:
		for _, item := range typed {
			if s, ok := item.(string); ok && jsonldTypes[strings.ToLower(s)] {
				return true
			}
		}
	}
	return false
}

func fillFromNode(node map[string]interface{}, l *models.Lead, pageURL string) int {
	filled := 0

	fill := func(attr string, dst *string, value string) {
		value = cleanText(value)
		if value == "" || !models.NeedsValue(*dst) {
			return
		}
		*dst = value
		filled++
		l.AddEvidence(models.ExtractionEvidence{
			Attribute: attr,
			Snippet:   truncateText(value, 160),
			URL:       pageURL,
			Method:    models.MethodJSONLD,
		})
	}

	fill("name", &l.Name, stringProp(node, "name"))
	fill("amount", &l.Amount, amountProp(node))
	fill("deadline", &l.Deadline, firstStringProp(node, "applicationDeadline", "deadline"))
	return filled
}

func stringProp(node map[string]interface{}, key string) string {
	switch v := node[key].(type) {
	case string:
		return v
	case float64:
		return formatNumber(v)
	}
	return ""
}

func firstStringProp(node map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := stringProp(node, key); s != "" {
			return s
		}
	}
	return ""
}

// amountProp reads value/amount, unwrapping a nested MonetaryAmount object
// when present and attaching its currency.
func amountProp(node map[string]interface{}) string {
	for _, key := range []string{"value", "amount"} {
		switch v := node[key].(type) {
		case string:
			return v
		case float64:
			return formatNumber(v)
		case map[string]interface{}:
			inner := firstStringProp(v, "value", "amount", "maxValue")
			if inner == "" {
				continue
			}
			if cur := stringProp(v, "currency"); cur != "" {
				return inner + " " + cur
			}
			return inner
		}
	}
	return ""
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
