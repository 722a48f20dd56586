package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/extract"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
	"github.com/david/scholarship-scout/internal/track"
)

// StatusSkipped marks a dispatch that never reached the network.
const StatusSkipped = "skipped"

// ScrapeResult is what one source scrape produced: leads, any pages that
// need the headless browser, and the terminal status for health tracking.
type ScrapeResult struct {
	Leads        []models.Lead
	QueueEntries []models.BrowserQueueEntry
	Status       string
	HTTPCode     int
	ErrorMessage string
}

// Deps carries the shared services every strategy scrapes with.
type Deps struct {
	Client     *fetch.Client
	Keywords   config.Keywords
	Profile    config.Profile
	Limits     config.Limits
	Endpoints  *track.APIEndpoints
	CrawlDelay time.Duration
}

// Strategy scrapes one configured source into leads.
type Strategy interface {
	Scrape(ctx context.Context, src config.Source, deps *Deps) ScrapeResult
}

// Registry maps scraper names from sources.yml to implementations.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

func (r *Registry) Register(id string, s Strategy) {
	r.strategies[id] = s
}

func (r *Registry) Get(id string) (Strategy, error) {
	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy not found: %s", id)
	}
	return s, nil
}

// DefaultRegistry holds the built-in strategies.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register(config.ScraperUniversity, &UniversityStrategy{})
	DefaultRegistry.Register(config.ScraperGovernment, &GovernmentStrategy{})
	// Foundation pages are curated listings like government ones.
	DefaultRegistry.Register(config.ScraperFoundation, &GovernmentStrategy{})
	DefaultRegistry.Register(config.ScraperThirdParty, &ThirdPartyStrategy{})
	DefaultRegistry.Register(config.ScraperAPI, &APIStrategy{})
	DefaultRegistry.Register(config.ScraperSelenium, &BrowserStrategy{})
}

// Dispatcher routes sources to their strategies, honouring the enabled flag
// and the health tracker's skip decision, and records the outcome of every
// attempted scrape.
type Dispatcher struct {
	Deps     *Deps
	Registry *Registry
	Health   *track.HealthTracker
	Filter   track.HealthFilter
}

func NewDispatcher(deps *Deps, health *track.HealthTracker, filter track.HealthFilter) *Dispatcher {
	return &Dispatcher{Deps: deps, Registry: DefaultRegistry, Health: health, Filter: filter}
}

func (d *Dispatcher) Dispatch(ctx context.Context, src config.Source) ScrapeResult {
	if !src.Enabled {
		return ScrapeResult{Status: StatusSkipped, ErrorMessage: "disabled in sources config"}
	}
	if d.Health != nil {
		if reason, skip := d.Health.ShouldSkip(src.URL, src.Type, d.Filter); skip {
			return ScrapeResult{Status: StatusSkipped, ErrorMessage: reason}
		}
	}

	strat, err := d.Registry.Get(src.Scraper)
	if err != nil {
		return ScrapeResult{Status: StatusSkipped, ErrorMessage: err.Error()}
	}

	res := strat.Scrape(ctx, src, d.Deps)
	// Skips from inside a strategy mean no request was made, so they do
	// not count against source health.
	if d.Health != nil && res.Status != StatusSkipped {
		d.Health.Record(src.URL, src.Name, src.Type, res.Status == models.StatusOK, res.HTTPCode, res.ErrorMessage)
	}
	return res
}

// tierForSourceType maps the source type onto the initial trust tier.
func tierForSourceType(t string) string {
	switch t {
	case models.SourceUniversity, models.SourceGovernment:
		return models.TierS
	case models.SourceFoundation:
		return models.TierA
	case models.SourceThirdParty:
		return models.TierB
	}
	return models.TierC
}

// failureResult converts a failed fetch outcome into a scrape result.
func failureResult(out *fetch.Outcome) ScrapeResult {
	return ScrapeResult{
		Status:       out.StateStatus(),
		HTTPCode:     out.StatusCode,
		ErrorMessage: out.Err,
	}
}

// pageLead runs the extraction cascade and browser detection on one fetched
// page. The lead is nil when no name could be extracted; the queue entry is
// non-nil when the page needs the headless browser.
func pageLead(html, pageURL string, src config.Source, httpCode int) (*models.Lead, *models.BrowserQueueEntry) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil
	}
	return docLead(doc, html, pageURL, src, httpCode)
}

func docLead(doc *goquery.Document, html, pageURL string, src config.Source, httpCode int) (*models.Lead, *models.BrowserQueueEntry) {
	now := time.Now().UTC()
	l := &models.Lead{
		URL:           pageURL,
		CanonicalURL:  leads.NormalizeURL(pageURL),
		SourceDomain:  hostOf(pageURL),
		Source:        src.Name,
		SourceType:    src.Type,
		TrustTier:     tierForSourceType(src.Type),
		HTTPStatus:    httpCode,
		FirstSeenAt:   now,
		LastCheckedAt: now,
		CheckCount:    1,
	}

	extract.Apply(doc, l, pageURL)
	pageText := strings.Join(strings.Fields(doc.Text()), " ")
	extract.ApplyEligibility(l, pageText, pageURL, models.MethodRegex)

	var entry *models.BrowserQueueEntry
	if det := extract.DetectNeedsBrowser(html, doc, l, pageURL); det.Needs {
		l.AddTag(models.TagPendingBrowser)
		entry = &models.BrowserQueueEntry{
			URL:                  pageURL,
			SourceID:             src.Name,
			SourceName:           src.Name,
			DiscoveredAt:         now,
			DetectionReason:      det.Reason,
			DetectedAPIEndpoints: det.APIEndpoints,
			Priority:             src.Priority,
		}
	}

	if models.NeedsValue(l.Name) {
		return nil, entry
	}
	return l, entry
}

// fundingText reports whether the text mentions any configured funding
// keyword.
func (d *Deps) fundingText(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, k := range d.Keywords.Funding {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// resolveHref resolves a link against its page and keeps only web URLs.
func resolveHref(base, href string) string {
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
