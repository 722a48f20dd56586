// Package pipeline sequences one full run over the configured sources:
// browser-result merge, scraping, discovery, dedup, rules, triage, link
// checks, reports, persistence. Per-source failures are collected into the
// run record; a single bad source never aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/discover"
	"github.com/david/scholarship-scout/internal/extract"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
	"github.com/david/scholarship-scout/internal/report"
	"github.com/david/scholarship-scout/internal/rules"
	"github.com/david/scholarship-scout/internal/scrape"
	"github.com/david/scholarship-scout/internal/track"
	"github.com/david/scholarship-scout/internal/triage"
)

// staleStateDays is how long a URL-state record survives without being seen
// before the end-of-run cleanup drops it.
const staleStateDays = 90

// Context carries every shared service a run needs. cmd/pipeline assembles
// it once and passes it by value; the stores hide their own locking.
type Context struct {
	Paths     config.Paths
	Client    *fetch.Client
	States    *track.Store
	Health    *track.HealthTracker
	Rules     *rules.RuleSet
	Criteria  *config.Criteria
	Sources   *config.SourcesFile
	Endpoints *track.APIEndpoints
}

// Options narrow a run. The zero value runs everything.
type Options struct {
	Source        string // run only the named source, even if disabled
	MaxSources    int    // cap on sources scraped, 0 means no cap
	SkipDiscovery bool
	SkipReports   bool
}

// Run executes the full pipeline and returns the run record. Only I/O that
// would corrupt persistent state aborts; everything else lands in the
// record's error list.
func Run(ctx context.Context, pc Context, opts Options) (report.RunMeta, error) {
	meta := report.RunMeta{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log.Printf("[pipeline] run %s starting", meta.RunID)

	existing, err := track.LoadLeads(pc.Paths.Leads())
	if err != nil {
		return meta, fmt.Errorf("failed to load lead set: %w", err)
	}

	mergeBrowserResults(pc, existing, &meta)

	deps := &scrape.Deps{
		Client:    pc.Client,
		Keywords:  pc.Criteria.Keywords,
		Profile:   pc.Criteria.Profile,
		Limits:    pc.Sources.Limits,
		Endpoints: pc.Endpoints,
	}
	dispatcher := scrape.NewDispatcher(deps, pc.Health, track.HealthFilter{HonorAutoDisable: true})

	srcs := selectSources(pc, opts, &meta)
	fresh := scrapeSources(ctx, pc, dispatcher, srcs, &meta)

	if !opts.SkipDiscovery {
		discoverSources(ctx, pc, srcs, &meta)
	}

	scrape.EnrichIndexLeads(ctx, deps, fresh)

	all, _ := leads.Dedup(append(existing, fresh...))

	// Persisted leads still carry last run's verdicts. Scoring starts clean
	// so re-runs on unchanged inputs land on the same lead set instead of
	// accumulating score and reasons.
	resetClassification(all)

	engine := rules.NewEngine(pc.Rules, pc.Criteria.Profile)
	audit := triage.New(engine).Run(all)

	checkLinks(ctx, pc, all)

	meta.LeadCount = len(all)
	meta.Buckets = countBuckets(all)

	var runDir string
	if !opts.SkipReports {
		dir, err := report.NewWriter(pc.Paths.Root).WriteAll(all, audit, pc.Health.All())
		if err != nil {
			meta.Errors = append(meta.Errors, fmt.Sprintf("reports: %v", err))
		} else {
			runDir = dir
			log.Printf("[pipeline] reports written to %s", dir)
		}
	}

	if err := track.SaveLeads(pc.Paths.Leads(), all); err != nil {
		return meta, fmt.Errorf("failed to persist lead set: %w", err)
	}
	if err := pc.Health.Save(); err != nil {
		meta.Errors = append(meta.Errors, fmt.Sprintf("health save: %v", err))
	}
	if pc.States != nil {
		if dropped, err := pc.States.CleanupOlderThan(staleStateDays); err != nil {
			meta.Errors = append(meta.Errors, fmt.Sprintf("state cleanup: %v", err))
		} else if dropped > 0 {
			log.Printf("[pipeline] %d stale url states dropped", dropped)
		}
	}

	meta.FinishedAt = time.Now().UTC()
	if runDir != "" {
		if err := report.WriteRunMeta(runDir, meta); err != nil {
			log.Printf("[pipeline] ⚠️ failed to write run meta: %v", err)
		}
	}

	log.Printf("[pipeline] run %s finished: %d leads, %d sources, %d errors in %s",
		meta.RunID, meta.LeadCount, len(meta.Sources), len(meta.Errors),
		meta.FinishedAt.Sub(meta.StartedAt).Round(time.Millisecond))
	return meta, nil
}

// mergeBrowserResults folds renderer output back into the persisted lead
// set, registers any API endpoints the processed pages exposed, and compacts
// the queue. Returns how many leads changed.
func mergeBrowserResults(pc Context, ls []models.Lead, meta *report.RunMeta) int {
	results, err := track.ReadBrowserResults(pc.Paths.BrowserResults())
	if err != nil {
		meta.Errors = append(meta.Errors, fmt.Sprintf("browser results: %v", err))
		return 0
	}
	if len(results) == 0 {
		return 0
	}

	byURL := make(map[string]int, len(ls))
	for i := range ls {
		byURL[ls[i].URL] = i
		if cu := ls[i].CanonicalURL; cu != "" && cu != ls[i].URL {
			if _, taken := byURL[cu]; !taken {
				byURL[cu] = i
			}
		}
	}

	processed := make(map[string]bool, len(results))
	merged := 0
	for _, r := range results {
		processed[r.URL] = true
		idx, ok := byURL[r.URL]
		if !ok {
			idx, ok = byURL[leads.NormalizeURL(r.URL)]
		}
		if !ok {
			continue
		}
		if leads.MergeBrowserResult(&ls[idx], r) {
			merged++
		}
		// The rendered dump is the fallback channel for fields the
		// renderer's own selectors missed.
		if txt := extract.SanitizeText(r.RenderedText); txt != "" {
			extract.ApplyEligibility(&ls[idx], txt, r.URL, models.MethodBrowser)
		}
	}
	log.Printf("[pipeline] %d of %d browser results merged into the lead set", merged, len(results))

	if entries, err := track.ReadQueue(pc.Paths.BrowserQueue()); err == nil {
		harvestEndpoints(pc, entries, processed)
	}
	if removed, err := track.CompactQueue(pc.Paths.BrowserQueue(), processed); err != nil {
		meta.Errors = append(meta.Errors, fmt.Sprintf("queue compact: %v", err))
	} else if removed > 0 {
		log.Printf("[pipeline] browser queue compacted, %d processed entries dropped", removed)
	}
	return merged
}

// harvestEndpoints registers API endpoints that browser detection sniffed
// out of pages the renderer has since processed, so the api strategy can
// query them directly on later runs.
func harvestEndpoints(pc Context, entries []models.BrowserQueueEntry, processed map[string]bool) {
	if pc.Endpoints == nil {
		return
	}
	added := 0
	for _, entry := range entries {
		if !processed[entry.URL] || len(entry.DetectedAPIEndpoints) == 0 {
			continue
		}
		host := hostOf(entry.URL)
		if host == "" {
			continue
		}
		for _, ep := range entry.DetectedAPIEndpoints {
			if pc.Endpoints.Add(host, track.EndpointConfig{URL: ep, Method: "GET"}) {
				added++
			}
		}
	}
	if added == 0 {
		return
	}
	if err := pc.Endpoints.Save(pc.Paths.APIEndpoints()); err != nil {
		log.Printf("[pipeline] ⚠️ failed to save endpoint registry: %v", err)
		return
	}
	log.Printf("[pipeline] %d detected API endpoints registered", added)
}

// selectSources resolves which sources this run scrapes: the one named in
// the options, or every enabled source up to the cap.
func selectSources(pc Context, opts Options, meta *report.RunMeta) []config.Source {
	if opts.Source != "" {
		src, ok := pc.Sources.ByName(opts.Source)
		if !ok {
			meta.Errors = append(meta.Errors, fmt.Sprintf("source %q not found in sources config", opts.Source))
			return nil
		}
		// Naming a source explicitly overrides its enabled flag.
		src.Enabled = true
		return []config.Source{src}
	}

	srcs := pc.Sources.Enabled()
	if opts.MaxSources > 0 && len(srcs) > opts.MaxSources {
		srcs = srcs[:opts.MaxSources]
	}
	return srcs
}

// scrapeSources dispatches every selected source and collects per-source
// stats, queueing any browser-required pages as a side effect.
func scrapeSources(ctx context.Context, pc Context, d *scrape.Dispatcher, srcs []config.Source, meta *report.RunMeta) []models.Lead {
	var fresh []models.Lead
	for _, src := range srcs {
		if ctx.Err() != nil {
			meta.Errors = append(meta.Errors, "run cancelled before all sources were scraped")
			break
		}

		start := time.Now()
		res := d.Dispatch(ctx, src)
		stat := report.SourceStat{
			Name:     src.Name,
			Type:     src.Type,
			Status:   res.Status,
			Leads:    len(res.Leads),
			Queued:   len(res.QueueEntries),
			Error:    res.ErrorMessage,
			Duration: time.Since(start).Round(time.Millisecond).String(),
		}
		meta.Sources = append(meta.Sources, stat)
		if res.ErrorMessage != "" && res.Status != scrape.StatusSkipped {
			meta.Errors = append(meta.Errors, fmt.Sprintf("%s: %s", src.Name, res.ErrorMessage))
		}

		fresh = append(fresh, res.Leads...)
		if len(res.QueueEntries) > 0 {
			if queued, err := track.AppendQueueEntries(pc.Paths.BrowserQueue(), res.QueueEntries); err != nil {
				meta.Errors = append(meta.Errors, fmt.Sprintf("%s: queue append: %v", src.Name, err))
			} else if queued > 0 {
				log.Printf("[pipeline] %s: %d pages queued for the browser", src.Name, queued)
			}
		}
		log.Printf("[pipeline] %s: %s, %d leads in %s", src.Name, res.Status, len(res.Leads), stat.Duration)
	}
	return fresh
}

// discoverSources runs discovery for the selected sources that opted in via
// discovery_mode, appending new candidates for the validator CLI.
func discoverSources(ctx context.Context, pc Context, srcs []config.Source, meta *report.RunMeta) {
	var wanting []config.Source
	for _, src := range srcs {
		if src.DiscoveryMode != "" {
			wanting = append(wanting, src)
		}
	}
	if len(wanting) == 0 {
		return
	}

	engine, err := discover.NewEngine(pc.Client, pc.Criteria, pc.Sources.Limits)
	if err != nil {
		meta.Errors = append(meta.Errors, fmt.Sprintf("discovery: %v", err))
		return
	}

	total := 0
	for _, src := range wanting {
		if ctx.Err() != nil {
			break
		}
		cands := engine.Discover(ctx, src)
		if len(cands) == 0 {
			continue
		}
		added, err := track.AppendCandidates(pc.Paths.Candidates(), cands)
		if err != nil {
			meta.Errors = append(meta.Errors, fmt.Sprintf("%s: candidate append: %v", src.Name, err))
			continue
		}
		total += added
	}
	if total > 0 {
		log.Printf("[pipeline] discovery added %d new candidates", total)
	}
}

// resetClassification clears every rule-derived field so the lead set is
// scored from scratch. Confidence stays: browser merges and validators set
// it upstream and triage only fills it when missing.
func resetClassification(ls []models.Lead) {
	for i := range ls {
		l := &ls[i]
		l.Bucket = ""
		l.MatchScore = 0
		l.EffortScore = 0
		l.MatchReasons = nil
		l.HardFailReasons = nil
		l.SoftFlags = nil
		l.MatchedRuleIDs = nil
		l.Watchlist = false
	}
}

// checkLinks probes every distinct lead URL cheaply and folds the result
// into the leads and the URL-state store. Runs after triage so the report's
// dead-link split reflects this run's statuses.
func checkLinks(ctx context.Context, pc Context, ls []models.Lead) {
	index := make(map[string][]int, len(ls))
	var urls []string
	for i := range ls {
		u := ls[i].URL
		if u == "" {
			continue
		}
		if _, seen := index[u]; !seen {
			urls = append(urls, u)
		}
		index[u] = append(index[u], i)
	}
	if len(urls) == 0 {
		return
	}

	outs := fetch.FetchAll(ctx, urls, pc.Sources.Limits.MaxConcurrent, func(ctx context.Context, u string) *fetch.Outcome {
		return pc.Client.Check(ctx, u)
	})

	dead := 0
	for j, out := range outs {
		if out == nil {
			continue
		}
		if out.Health.TrueDead() {
			dead++
		}
		for _, i := range index[urls[j]] {
			if out.StatusCode != 0 {
				ls[i].HTTPStatus = out.StatusCode
			}
		}
		if pc.States != nil {
			st, _, err := pc.States.Get(out.URL)
			if err != nil {
				continue
			}
			out.ApplyTo(&st)
			if err := pc.States.Upsert(st); err != nil {
				log.Printf("[pipeline] ⚠️ url state upsert failed for %s: %v", out.URL, err)
			}
		}
	}
	log.Printf("[pipeline] link check: %d urls probed, %d true dead", len(urls), dead)
}

func countBuckets(ls []models.Lead) map[string]int {
	counts := make(map[string]int, 4)
	for i := range ls {
		b := ls[i].Bucket
		if b == "" {
			b = "unbucketed"
		}
		counts[b]++
	}
	return counts
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
