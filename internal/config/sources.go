package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/sources.yml
var embeddedSourcesYAML []byte

// Scraper strategy names accepted in sources.yml.
const (
	ScraperUniversity = "university"
	ScraperGovernment = "government"
	ScraperThirdParty = "third_party"
	ScraperFoundation = "foundation"
	ScraperSelenium   = "selenium" // browser-required; enqueued, not scraped
	ScraperAPI        = "api"
)

var knownScrapers = map[string]bool{
	ScraperUniversity: true,
	ScraperGovernment: true,
	ScraperThirdParty: true,
	ScraperFoundation: true,
	ScraperSelenium:   true,
	ScraperAPI:        true,
}

// Source is one seed entry from sources.yml.
type Source struct {
	Name                 string   `yaml:"name"`
	Type                 string   `yaml:"type"`
	URL                  string   `yaml:"url"`
	Enabled              bool     `yaml:"enabled"`
	Scraper              string   `yaml:"scraper"`
	Priority             int      `yaml:"priority,omitempty"`
	DiscoveryMode        string   `yaml:"discovery_mode,omitempty"` // breadth | seed | both
	Mode                 string   `yaml:"mode,omitempty"`           // index_only | full
	MaxDepth             int      `yaml:"max_depth,omitempty"`
	AllowDomainsOutbound []string `yaml:"allow_domains_outbound,omitempty"`
	DenyPatterns         []string `yaml:"deny_patterns,omitempty"`
	SearchEndpoints      []string `yaml:"search_endpoints,omitempty"`
}

// Limits are the crawl and health ceilings shared by every source.
type Limits struct {
	MaxConcurrent     int    `yaml:"max_concurrent"`
	MaxTotalURLs      int    `yaml:"max_total_urls"`
	MaxSitemapSize    int    `yaml:"max_sitemap_size"`
	MaxFailures       int    `yaml:"max_failures"`
	AllowlistPathExpr string `yaml:"allowlist_path_regex"`
}

// SourcesFile is the parsed sources.yml.
type SourcesFile struct {
	Sources []Source `yaml:"sources"`
	Limits  Limits   `yaml:"limits"`
}

// LoadSources reads path when it exists, the embedded default otherwise.
// Environment references in the YAML are expanded before parsing.
func LoadSources(path string) (*SourcesFile, error) {
	raw := embeddedSourcesYAML
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			raw = data
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read sources config %s: %w", path, err)
		}
	}

	expanded := os.ExpandEnv(string(raw))
	var file SourcesFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources config: %w", err)
	}

	if file.Limits.MaxConcurrent <= 0 {
		file.Limits.MaxConcurrent = 8
	}
	if file.Limits.MaxTotalURLs <= 0 {
		file.Limits.MaxTotalURLs = 500
	}
	if file.Limits.MaxSitemapSize <= 0 {
		file.Limits.MaxSitemapSize = 2000
	}
	if file.Limits.MaxFailures <= 0 {
		file.Limits.MaxFailures = 5
	}

	return &file, nil
}

// Enabled returns the enabled sources in priority order (stable for equal
// priorities, higher priority first).
func (f *SourcesFile) Enabled() []Source {
	out := make([]Source, 0, len(f.Sources))
	for _, s := range f.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority > out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ByName finds a source by its configured name.
func (f *SourcesFile) ByName(name string) (Source, bool) {
	for _, s := range f.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Validate collects every problem in the file rather than stopping at the
// first, so the lint CLI can print them all.
func (f *SourcesFile) Validate() []string {
	var problems []string
	seen := map[string]bool{}

	for i, s := range f.Sources {
		where := fmt.Sprintf("sources[%d] (%s)", i, s.Name)
		if s.Name == "" {
			problems = append(problems, fmt.Sprintf("sources[%d]: missing name", i))
		} else if seen[s.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate name", where))
		}
		seen[s.Name] = true

		if s.URL == "" {
			problems = append(problems, fmt.Sprintf("%s: missing url", where))
		} else if u, err := url.Parse(s.URL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s: invalid url %q", where, s.URL))
		}

		if !knownScrapers[s.Scraper] {
			problems = append(problems, fmt.Sprintf("%s: unknown scraper %q", where, s.Scraper))
		}
		if s.MaxDepth < 0 || s.MaxDepth > 10 {
			problems = append(problems, fmt.Sprintf("%s: max_depth %d out of range", where, s.MaxDepth))
		}
	}

	return problems
}
