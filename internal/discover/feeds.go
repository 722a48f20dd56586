package discover

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/models"
)

// conventionalFeedPaths are probed when the homepage does not advertise a
// feed in its head.
var conventionalFeedPaths = []string{"/feed", "/rss", "/rss.xml", "/atom.xml", "/feed.xml"}

type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []struct {
			Title string `xml:"title"`
			Link  string `xml:"link"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomFeed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []struct {
		Title string     `xml:"title"`
		Links []atomLink `xml:"link"`
	} `xml:"entry"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// discoverFeeds finds RSS/Atom feeds advertised by the page at pageURL, adds
// the conventional feed paths of its origin, and emits every item link.
func (e *Engine) discoverFeeds(ctx context.Context, pageURL string, run *breadthRun) {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return
	}

	feedURLs := make([]string, 0, 8)
	seenFeeds := make(map[string]bool)
	add := func(raw string) {
		if raw == "" || seenFeeds[raw] {
			return
		}
		seenFeeds[raw] = true
		feedURLs = append(feedURLs, raw)
	}

	page := e.client.Fetch(ctx, pageURL, nil)
	if page.OK() && len(page.Body) > 0 {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body)); err == nil {
			doc.Find(`link[rel="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
				typ, _ := sel.Attr("type")
				if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") {
					return
				}
				href, _ := sel.Attr("href")
				if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
					add(base.ResolveReference(ref).String())
				}
			})
		}
	}

	origin := base.Scheme + "://" + base.Host
	for _, p := range conventionalFeedPaths {
		add(origin + p)
	}

	for _, feedURL := range feedURLs {
		if run.full() {
			return
		}
		e.emitFeedItems(ctx, feedURL, run)
	}
}

// emitFeedItems fetches one feed and emits its item links. Non-feed
// responses are skipped quietly because the conventional paths are probes.
func (e *Engine) emitFeedItems(ctx context.Context, feedURL string, run *breadthRun) {
	out := e.client.Fetch(ctx, feedURL, nil)
	if !out.OK() || len(out.Body) == 0 {
		return
	}

	var rss rssFeed
	if xml.Unmarshal(out.Body, &rss) == nil && len(rss.Channel.Items) > 0 {
		for _, item := range rss.Channel.Items {
			if !run.emit(strings.TrimSpace(item.Link), feedURL, models.DiscoveryRSS, item.Title) {
				return
			}
		}
		return
	}

	var atom atomFeed
	if xml.Unmarshal(out.Body, &atom) == nil && len(atom.Entries) > 0 {
		for _, entry := range atom.Entries {
			if !run.emit(atomEntryLink(entry.Links), feedURL, models.DiscoveryAtom, entry.Title) {
				return
			}
		}
	}
}

// atomEntryLink prefers the alternate link, falling back to the first href.
func atomEntryLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}
