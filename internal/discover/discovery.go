package discover

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
)

// Engine finds candidate scholarship URLs for configured sources. Breadth
// discovery walks sitemaps, feeds, and search endpoints of the source's own
// site; seeded discovery crawls the source and emits outbound links.
type Engine struct {
	client  *fetch.Client
	scorer  *Scorer
	limits  config.Limits
	allowRe *regexp.Regexp
	search  []string
}

func NewEngine(client *fetch.Client, crit *config.Criteria, limits config.Limits) (*Engine, error) {
	e := &Engine{
		client: client,
		scorer: NewScorer(crit.Keywords),
		limits: limits,
		search: crit.Keywords.Search,
	}
	if len(e.search) == 0 {
		e.search = crit.Keywords.Funding
	}
	if expr := limits.AllowlistPathExpr; expr != "" {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("allowlist_path_regex %q does not compile: %w", expr, err)
		}
		e.allowRe = re
	}
	return e, nil
}

// Discover runs the discovery modes configured for the source. An empty
// discovery_mode means breadth; "both" runs breadth then seeded.
func (e *Engine) Discover(ctx context.Context, src config.Source) []models.Candidate {
	mode := src.DiscoveryMode
	if mode == "" {
		mode = "breadth"
	}

	var out []models.Candidate
	if mode == "breadth" || mode == "both" {
		out = append(out, e.DiscoverBreadth(ctx, src)...)
	}
	if mode == "seed" || mode == "both" {
		out = append(out, e.DiscoverFromSeed(ctx, src)...)
	}
	return out
}

// DiscoverBreadth collects candidates from the source's robots.txt sitemap
// declarations, the well-known sitemap paths, RSS/Atom feeds, and any
// configured search endpoints. Every emitted URL passes the path allowlist,
// and the overall count is capped by max_total_urls.
func (e *Engine) DiscoverBreadth(ctx context.Context, src config.Source) []models.Candidate {
	base, err := url.Parse(src.URL)
	if err != nil || base.Host == "" {
		log.Printf("[discover] ⚠️ %s: unusable seed url %q", src.Name, src.URL)
		return nil
	}
	origin := base.Scheme + "://" + base.Host

	run := &breadthRun{
		engine: e,
		src:    src,
		seen:   make(map[string]bool),
	}

	sitemaps := e.robotsSitemaps(ctx, origin)
	for _, wk := range []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemaps.xml"} {
		sitemaps = append(sitemaps, origin+wk)
	}
	e.walkSitemaps(ctx, sitemaps, run.emit)

	if !run.full() {
		e.discoverFeeds(ctx, src.URL, run)
	}
	if !run.full() {
		e.discoverSearch(src, run)
	}

	log.Printf("[discover] %s: breadth discovery found %d candidates", src.Name, len(run.out))
	return run.out
}

// breadthRun accumulates one source's breadth candidates behind the shared
// dedup, allowlist, and budget checks.
type breadthRun struct {
	engine *Engine
	src    config.Source
	seen   map[string]bool
	out    []models.Candidate
}

func (r *breadthRun) full() bool {
	return len(r.out) >= r.engine.limits.MaxTotalURLs
}

// emit records one discovered URL. It returns false once the budget is
// spent so walkers can stop early.
func (r *breadthRun) emit(rawURL, from, channel, anchor string) bool {
	if r.full() {
		return false
	}

	norm := leads.NormalizeURL(rawURL)
	if norm == "" || r.seen[norm] {
		return true
	}
	r.seen[norm] = true

	u, err := url.Parse(norm)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return true
	}
	// Search endpoints are operator-configured, so the path allowlist does
	// not apply to them.
	if channel != models.DiscoverySearch && r.engine.allowRe != nil && !r.engine.allowRe.MatchString(u.Path) {
		return true
	}

	score, reason := r.engine.scorer.Score(norm, anchor, "")
	r.out = append(r.out, models.Candidate{
		URL:             norm,
		SourceSeed:      r.src.Name,
		DiscoveredFrom:  from,
		Confidence:      score,
		Reason:          reason,
		DiscoveredAt:    time.Now().UTC(),
		DiscoverySource: channel,
	})
	return !r.full()
}

// robotsSitemaps returns the Sitemap: declarations from the origin's
// robots.txt, if any.
func (e *Engine) robotsSitemaps(ctx context.Context, origin string) []string {
	robotsURL := origin + "/robots.txt"
	out := e.client.Fetch(ctx, robotsURL, nil)
	if !out.OK() || len(out.Body) == 0 {
		return nil
	}

	var found []string
	sc := bufio.NewScanner(bytes.NewReader(out.Body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) < 8 || !strings.EqualFold(line[:8], "sitemap:") {
			continue
		}
		if loc := strings.TrimSpace(line[8:]); loc != "" {
			found = append(found, loc)
		}
	}
	if len(found) > 0 {
		log.Printf("[discover] robots.txt at %s declares %d sitemaps", robotsURL, len(found))
	}
	return found
}

// discoverSearch composes each configured search endpoint with every search
// keyword. Endpoints may carry a {query} placeholder; otherwise the escaped
// keyword is appended.
func (e *Engine) discoverSearch(src config.Source, run *breadthRun) {
	for _, endpoint := range src.SearchEndpoints {
		for _, kw := range e.search {
			composed := composeSearchURL(endpoint, kw)
			if composed == "" {
				continue
			}
			if !run.emit(composed, endpoint, models.DiscoverySearch, kw) {
				return
			}
		}
	}
}

func composeSearchURL(endpoint, keyword string) string {
	keyword = strings.TrimSpace(keyword)
	if endpoint == "" || keyword == "" {
		return ""
	}
	escaped := url.QueryEscape(keyword)
	if strings.Contains(endpoint, "{query}") {
		return strings.ReplaceAll(endpoint, "{query}", escaped)
	}
	return endpoint + escaped
}
