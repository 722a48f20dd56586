package models

import "time"

// How a candidate URL was found.
const (
	DiscoveryManual       = "manual"
	DiscoveryRobots       = "robots"
	DiscoverySitemap      = "sitemap"
	DiscoverySitemapIndex = "sitemap_index"
	DiscoveryRSS          = "rss"
	DiscoveryAtom         = "atom"
	DiscoverySearch       = "search"
	DiscoveryExternalLink = "external_link"
)

// Candidate is a discovered URL awaiting validation, one per line in
// tracking/candidate_urls.jsonl.
type Candidate struct {
	URL             string    `json:"url"`
	SourceSeed      string    `json:"source_seed,omitempty"`
	DiscoveredFrom  string    `json:"discovered_from,omitempty"`
	Confidence      float64   `json:"confidence"`
	Reason          string    `json:"reason,omitempty"`
	DiscoveredAt    time.Time `json:"discovered_at"`
	Tags            []string  `json:"tags,omitempty"`
	DiscoverySource string    `json:"discovery_source,omitempty"`
}

func (c *Candidate) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (c *Candidate) AddTag(tag string) {
	if tag == "" || c.HasTag(tag) {
		return
	}
	c.Tags = append(c.Tags, tag)
}

// BrowserQueueEntry is a render request for the external headless browser,
// one per line in tracking/browser_queue.jsonl, keyed by URL.
type BrowserQueueEntry struct {
	URL                  string    `json:"url"`
	SourceID             string    `json:"source_id,omitempty"`
	SourceName           string    `json:"source_name,omitempty"`
	DiscoveredAt         time.Time `json:"discovered_at"`
	DetectionReason      string    `json:"detection_reason"`
	DetectedAPIEndpoints []string  `json:"detected_api_endpoints,omitempty"`
	Priority             int       `json:"priority"`
	RetryCount           int       `json:"retry_count"`
}

// BrowserResult is what the external renderer writes back to
// tracking/browser_results.jsonl for a queued URL.
type BrowserResult struct {
	URL          string    `json:"url"`
	Name         string    `json:"name,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Deadline     string    `json:"deadline,omitempty"`
	Eligibility  []string  `json:"eligibility,omitempty"`
	RenderedText string    `json:"rendered_text,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}
