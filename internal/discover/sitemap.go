package discover

import (
	"context"
	"encoding/xml"
	"log"
	"strings"

	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
)

type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name       `xml:"urlset"`
	URLs    []sitemapEntry `xml:"url"`
}

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type sitemapJob struct {
	url       string
	fromIndex bool
}

// walkSitemaps fetches every sitemap reachable from roots, following nested
// sitemap indexes breadth-first. A visited set breaks reference cycles; each
// file contributes at most max_sitemap_size URLs, and emit's return value
// stops the walk once the overall budget is spent.
func (e *Engine) walkSitemaps(ctx context.Context, roots []string, emit func(loc, from, channel, anchor string) bool) {
	queue := make([]sitemapJob, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, sitemapJob{url: r})
	}

	visited := make(map[string]bool)
	for len(queue) > 0 {
		job := queue[0]
		queue = queue[1:]

		norm := leads.NormalizeURL(job.url)
		if norm == "" || visited[norm] {
			continue
		}
		visited[norm] = true

		out := e.client.Fetch(ctx, job.url, nil)
		if !out.OK() || len(out.Body) == 0 {
			continue
		}

		nested, pages, err := parseSitemap(out.Body)
		if err != nil {
			log.Printf("[discover] ⚠️ sitemap %s unparseable: %v", job.url, err)
			continue
		}

		if len(nested) > 0 {
			for _, loc := range nested {
				queue = append(queue, sitemapJob{url: loc, fromIndex: true})
			}
			continue
		}

		channel := models.DiscoverySitemap
		if job.fromIndex {
			channel = models.DiscoverySitemapIndex
		}
		if len(pages) > e.limits.MaxSitemapSize {
			log.Printf("[discover] sitemap %s truncated to %d of %d URLs", job.url, e.limits.MaxSitemapSize, len(pages))
			pages = pages[:e.limits.MaxSitemapSize]
		}
		for _, loc := range pages {
			if !emit(loc, job.url, channel, "") {
				return
			}
		}
	}
}

// parseSitemap decodes either a sitemap index or a URL set. Exactly one of
// the returned slices is populated.
func parseSitemap(body []byte) (nested, pages []string, err error) {
	var idx sitemapIndex
	if xml.Unmarshal(body, &idx) == nil {
		for _, s := range idx.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				nested = append(nested, loc)
			}
		}
		return nested, nil, nil
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, nil, err
	}
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			pages = append(pages, loc)
		}
	}
	return nil, pages, nil
}
