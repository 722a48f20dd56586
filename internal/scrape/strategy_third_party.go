package scrape

import (
	"bytes"
	"context"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/discover"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
)

const (
	maxIndexItems = 30

	// A listing with this many external links is treated as index-only even
	// without the mode flag.
	indexOnlyThreshold = 3
)

// ThirdPartyStrategy handles aggregator sites. Index-only listings yield
// thin leads carrying the title and the official external link, to be
// enriched in a follow-up pass; anything else falls back to a single-page
// extract.
type ThirdPartyStrategy struct{}

func (s *ThirdPartyStrategy) Scrape(ctx context.Context, src config.Source, deps *Deps) ScrapeResult {
	out := deps.Client.Fetch(ctx, src.URL, nil)
	if !out.OK() || len(out.Body) == 0 {
		return failureResult(out)
	}

	pageURL := src.URL
	if out.FinalURL != "" {
		pageURL = out.FinalURL
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(out.Body))
	if err != nil {
		return ScrapeResult{Status: models.StatusParseError, HTTPCode: out.StatusCode, ErrorMessage: err.Error()}
	}

	items := collectIndexItems(doc, pageURL, deps)
	if src.Mode == "index_only" || len(items) >= indexOnlyThreshold {
		res := ScrapeResult{Status: models.StatusOK, HTTPCode: out.StatusCode}
		now := time.Now().UTC()
		for _, it := range items {
			leadURL := it.detail
			if leadURL == "" {
				leadURL = pageURL
			}
			l := models.Lead{
				Name:              it.title,
				URL:               leadURL,
				SourceDomain:      hostOf(pageURL),
				Source:            src.Name,
				SourceType:        src.Type,
				TrustTier:         models.TierB,
				OfficialSourceURL: it.official,
				IsIndexOnly:       true,
				HTTPStatus:        out.StatusCode,
				FirstSeenAt:       now,
				LastCheckedAt:     now,
				CheckCount:        1,
			}
			l.AddEvidence(models.ExtractionEvidence{
				Attribute: "name",
				Snippet:   it.title,
				Selector:  it.selector,
				URL:       pageURL,
				Method:    models.MethodSelector,
			})
			res.Leads = append(res.Leads, l)
		}
		log.Printf("[scrape] %s: index-only listing yielded %d items", src.Name, len(res.Leads))
		return res
	}

	// Not a recognisable index; treat as a normal content page.
	res := ScrapeResult{Status: models.StatusOK, HTTPCode: out.StatusCode}
	lead, entry := docLead(doc, string(out.Body), pageURL, src, out.StatusCode)
	if lead != nil {
		if linkCount := doc.Find("a[href]").Length(); linkCount > 40 {
			lead.IsDirectoryPage = true
		}
		res.Leads = append(res.Leads, *lead)
	}
	if entry != nil {
		res.QueueEntries = append(res.QueueEntries, *entry)
	}
	return res
}

type indexItem struct {
	title    string
	detail   string // aggregator's own detail page
	official string // first external link
	selector string
}

var indexContainerSelectors = []string{
	"article",
	"li.result",
	"div.result",
	"div.listing-item",
	"div.search-result",
	"li.funding-item",
	"tr.listing",
	"li",
}

// collectIndexItems walks listing containers and keeps the ones that carry
// a plausible scholarship title plus at least one link. The first external
// link becomes the official source.
func collectIndexItems(doc *goquery.Document, pageURL string, deps *Deps) []indexItem {
	host := hostOf(pageURL)
	var items []indexItem
	seen := map[string]bool{}

	for _, containerSel := range indexContainerSelectors {
		doc.Find(containerSel).Each(func(_ int, sel *goquery.Selection) {
			if len(items) >= maxIndexItems {
				return
			}
			item := indexItem{selector: containerSel}

			for _, titleSel := range []string{"h2", "h3", "h4", "strong", "a"} {
				if t := cleanSpace(sel.Find(titleSel).First().Text()); t != "" {
					item.title = t
					break
				}
			}
			if item.title == "" {
				return
			}

			sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
				href, _ := a.Attr("href")
				abs := resolveHref(pageURL, href)
				if abs == "" {
					return
				}
				if hostOf(abs) == host {
					if item.detail == "" {
						item.detail = abs
					}
					return
				}
				if item.official == "" {
					item.official = abs
				}
			})
			if item.detail == "" && item.official == "" {
				return
			}

			// Keep only items that look like funding entries.
			if !deps.fundingText(item.title) &&
				!discover.FundingPath(item.official) && !discover.FundingPath(item.detail) {
				return
			}

			key := leads.NormalizeURL(item.official) + "|" + strings.ToLower(item.title)
			if seen[key] {
				return
			}
			seen[key] = true
			items = append(items, item)
		})
		if len(items) > 0 {
			break
		}
	}
	return items
}

func cleanSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
