package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths resolves every file the pipeline reads or writes under one root.
// The root comes from the ROOT environment variable unless set explicitly.
type Paths struct {
	Root string
}

func NewPaths(root string) Paths {
	if root == "" {
		root = os.Getenv("ROOT")
	}
	if root == "" {
		root = "."
	}
	return Paths{Root: root}
}

func (p Paths) ConfigDir() string   { return filepath.Join(p.Root, "config") }
func (p Paths) TrackingDir() string { return filepath.Join(p.Root, "tracking") }

// ProductionsDir holds one timestamped directory per reporting run.
func (p Paths) ProductionsDir() string {
	return filepath.Join(p.Root, "scripts", "productions")
}

func (p Paths) SourcesFile() string  { return filepath.Join(p.ConfigDir(), "sources.yml") }
func (p Paths) CriteriaFile() string { return filepath.Join(p.ConfigDir(), "criteria.yml") }
func (p Paths) RulesFile() string    { return filepath.Join(p.ConfigDir(), "rules.yaml") }

func (p Paths) URLStateDB() string     { return filepath.Join(p.TrackingDir(), "url_state.db") }
func (p Paths) SourceHealth() string   { return filepath.Join(p.TrackingDir(), "source_health.json") }
func (p Paths) Leads() string          { return filepath.Join(p.TrackingDir(), "leads.json") }
func (p Paths) APIEndpoints() string   { return filepath.Join(p.TrackingDir(), "api_endpoints.json") }
func (p Paths) Candidates() string     { return filepath.Join(p.TrackingDir(), "candidate_urls.jsonl") }
func (p Paths) BrowserQueue() string   { return filepath.Join(p.TrackingDir(), "browser_queue.jsonl") }
func (p Paths) BrowserResults() string { return filepath.Join(p.TrackingDir(), "browser_results.jsonl") }
func (p Paths) UsersDB() string        { return filepath.Join(p.TrackingDir(), "users.db") }

// EnsureDirs creates the tracking and productions directories if missing.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.TrackingDir(), p.ProductionsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
