package scrape

import (
	"bytes"
	"context"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/extract"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
)

const maxAttachmentPDFs = 2

// EnrichFromOfficial re-extracts an index-only lead from its official page.
// On success the canonical URL moves to the official site, so a duplicate
// scraped from the university itself collapses into the same entity.
func EnrichFromOfficial(ctx context.Context, deps *Deps, l *models.Lead) bool {
	if l.OfficialSourceURL == "" {
		return false
	}
	out := deps.Client.Fetch(ctx, l.OfficialSourceURL, nil)
	if !out.OK() || len(out.Body) == 0 {
		return false
	}
	pageURL := l.OfficialSourceURL
	if out.FinalURL != "" {
		pageURL = out.FinalURL
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(out.Body))
	if err != nil {
		return false
	}

	l.HTTPStatus = out.StatusCode
	l.CanonicalURL = leads.NormalizeURL(pageURL)
	extract.Apply(doc, l, pageURL)
	pageText := strings.Join(strings.Fields(doc.Text()), " ")
	extract.ApplyEligibility(l, pageText, pageURL, models.MethodRegex)

	for _, pdfURL := range attachmentPDFLinks(doc, pageURL) {
		pdfOut := deps.Client.Fetch(ctx, pdfURL, nil)
		if !pdfOut.OK() || len(pdfOut.Body) == 0 {
			continue
		}
		if _, err := extract.EnrichFromPDF(l, pdfOut.Body, pdfURL); err != nil {
			log.Printf("[scrape] ⚠️ pdf enrich failed for %s: %v", pdfURL, err)
		}
	}

	l.IsIndexOnly = false
	l.LastCheckedAt = time.Now().UTC()
	l.CheckCount++
	return true
}

// EnrichIndexLeads runs the official-page pass over every index-only lead
// in place. Leads whose official page is unreachable, or that stay thin
// after enrichment, drop to tier C and get flagged for manual review.
func EnrichIndexLeads(ctx context.Context, deps *Deps, ls []models.Lead) (verified, demoted int) {
	for i := range ls {
		if !ls[i].IsIndexOnly {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		ok := EnrichFromOfficial(ctx, deps, &ls[i])
		switch {
		case !ok:
			demote(&ls[i], "official page unreachable")
			demoted++
		case extract.Weak(&ls[i]):
			demote(&ls[i], "thin extraction from official page")
			demoted++
		default:
			verified++
		}
	}
	if verified+demoted > 0 {
		log.Printf("[scrape] enrich: %d verified, %d demoted of %d index leads", verified, demoted, verified+demoted)
	}
	return verified, demoted
}

func demote(l *models.Lead, reason string) {
	l.TrustTier = models.TierC
	l.AddTag(models.TagNeedsVerification)
	l.RiskFlags = append(l.RiskFlags, reason)
}

// attachmentPDFLinks finds linked PDF documents on a page, in document
// order, capped so one prospectus-heavy page cannot stall a run.
func attachmentPDFLinks(doc *goquery.Document, pageURL string) []string {
	var links []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if len(links) >= maxAttachmentPDFs {
			return
		}
		href, _ := a.Attr("href")
		lower := strings.ToLower(href)
		if !strings.HasSuffix(lower, ".pdf") && !strings.Contains(lower, ".pdf?") {
			return
		}
		abs := resolveHref(pageURL, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})
	return links
}
