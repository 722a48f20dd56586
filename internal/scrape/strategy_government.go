package scrape

import (
	"bytes"
	"context"
	"log"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/discover"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
)

const maxGovernmentDetails = 15

// GovernmentStrategy handles official programme pages whose URLs are the
// canonical record. It extracts the configured page itself and follows at
// most one hop of same-host funding links for detail pages.
type GovernmentStrategy struct{}

func (s *GovernmentStrategy) Scrape(ctx context.Context, src config.Source, deps *Deps) ScrapeResult {
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

	res := ScrapeResult{Status: models.StatusOK, HTTPCode: out.StatusCode}
	lead, entry := docLead(doc, string(out.Body), pageURL, src, out.StatusCode)
	if lead != nil {
		res.Leads = append(res.Leads, *lead)
	}
	if entry != nil {
		res.QueueEntries = append(res.QueueEntries, *entry)
	}

	for _, detail := range detailLinks(doc, pageURL, maxGovernmentDetails) {
		if ctx.Err() != nil {
			break
		}
		dout := deps.Client.Fetch(ctx, detail, nil)
		if !dout.OK() || len(dout.Body) == 0 {
			continue
		}
		detailURL := detail
		if dout.FinalURL != "" {
			detailURL = dout.FinalURL
		}
		lead, entry := pageLead(string(dout.Body), detailURL, src, dout.StatusCode)
		if lead != nil {
			res.Leads = append(res.Leads, *lead)
		}
		if entry != nil {
			res.QueueEntries = append(res.QueueEntries, *entry)
		}
	}

	log.Printf("[scrape] %s: %d leads from canonical pages", src.Name, len(res.Leads))
	return res
}

// detailLinks collects the same-host funding links on a listing page, in
// document order, deduped against the page itself.
func detailLinks(doc *goquery.Document, pageURL string, limit int) []string {
	host := hostOf(pageURL)
	pageNorm := leads.NormalizeURL(pageURL)

	var out []string
	seen := map[string]bool{pageNorm: true}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if len(out) >= limit {
			return
		}
		href, _ := sel.Attr("href")
		abs := resolveHref(pageURL, href)
		if abs == "" || hostOf(abs) != host || !discover.FundingPath(abs) {
			return
		}
		norm := leads.NormalizeURL(abs)
		if seen[norm] {
			return
		}
		seen[norm] = true
		out = append(out, abs)
	})
	return out
}
