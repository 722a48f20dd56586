package discover

import (
	"bytes"
	"context"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
)

const defaultSeedDepth = 2

type crawlItem struct {
	url   string
	depth int
}

// DiscoverFromSeed crawls the source's own pages breadth-first up to
// max_depth and emits the outbound links that clear three gates, in order:
// deny patterns, the outbound domain allowlist, and the confidence floor.
// Same-domain links are followed but never emitted; the crawl stays on the
// seed domain and only leaves it through candidate emission. Pages are
// fetched at their resolved URLs; the normalized form is identity only.
func (e *Engine) DiscoverFromSeed(ctx context.Context, src config.Source) []models.Candidate {
	seedNorm := leads.NormalizeURL(src.URL)
	seedHost := hostOf(seedNorm)
	if seedHost == "" {
		log.Printf("[discover] ⚠️ %s: unusable seed url %q", src.Name, src.URL)
		return nil
	}

	maxDepth := src.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultSeedDepth
	}
	deny := compileDenyPatterns(src.DenyPatterns)

	queue := []crawlItem{{url: src.URL, depth: 0}}
	visited := map[string]bool{seedNorm: true}
	emitted := make(map[string]bool)
	var out []models.Candidate

	for len(queue) > 0 && len(out) < e.limits.MaxTotalURLs {
		item := queue[0]
		queue = queue[1:]

		res := e.client.Fetch(ctx, item.url, nil)
		if !res.OK() || len(res.Body) == 0 {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
		if err != nil {
			continue
		}

		pageBase := item.url
		if res.FinalURL != "" {
			pageBase = res.FinalURL
		}
		title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")

		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			if len(out) >= e.limits.MaxTotalURLs {
				return
			}
			href, _ := sel.Attr("href")
			child := resolveLink(pageBase, href)
			if child == "" {
				return
			}
			norm := leads.NormalizeURL(child)

			if matchesAny(deny, norm) {
				return
			}

			childHost := hostOf(norm)
			if childHost == "" {
				return
			}
			if childHost == seedHost {
				if item.depth < maxDepth && !visited[norm] {
					visited[norm] = true
					queue = append(queue, crawlItem{url: child, depth: item.depth + 1})
				}
				return
			}
			if !domainAllowed(src.AllowDomainsOutbound, childHost) {
				return
			}

			anchor := strings.Join(strings.Fields(sel.Text()), " ")
			score, reason := e.scorer.Score(norm, anchor, title)
			if score < minCandidateConfidence {
				return
			}

			if emitted[norm] {
				return
			}
			emitted[norm] = true
			out = append(out, models.Candidate{
				URL:             norm,
				SourceSeed:      src.Name,
				DiscoveredFrom:  item.url,
				Confidence:      score,
				Reason:          reason,
				DiscoveredAt:    time.Now().UTC(),
				DiscoverySource: models.DiscoveryExternalLink,
			})
		})
	}

	log.Printf("[discover] %s: seeded crawl emitted %d candidates from %d pages", src.Name, len(out), len(visited))
	return out
}

// domainAllowed applies the outbound allowlist: "*.ac.uk" entries match any
// host under that suffix, plain entries match by substring. An empty list
// allows every outbound domain; the confidence gate does the filtering then.
func domainAllowed(allow []string, host string) bool {
	if len(allow) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, entry := range allow {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, "*.") {
			if strings.HasSuffix(host, entry[1:]) || host == entry[2:] {
				return true
			}
			continue
		}
		if strings.Contains(host, entry) {
			return true
		}
	}
	return false
}

func compileDenyPatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Printf("[discover] ⚠️ deny pattern %q does not compile: %v", p, err)
			continue
		}
		out = append(out, re)
	}
	return out
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// resolveLink resolves href against base and drops anything that is not a
// fetchable web URL.
func resolveLink(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "tel:") {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := b.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
