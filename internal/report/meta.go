package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SourceStat is one source's contribution to a run.
type SourceStat struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Leads    int    `json:"leads"`
	Queued   int    `json:"queued_for_browser,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// RunMeta is the machine-readable run record the ops tools read back.
type RunMeta struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	LeadCount  int            `json:"lead_count"`
	Buckets    map[string]int `json:"buckets,omitempty"`
	Sources    []SourceStat   `json:"sources,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// WriteRunMeta drops run_meta.json into a production directory.
func WriteRunMeta(dir string, meta RunMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run_meta.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write run meta: %w", err)
	}
	return nil
}

// ReadRunMeta loads one run record back.
func ReadRunMeta(path string) (RunMeta, error) {
	var meta RunMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, fmt.Errorf("failed to read run meta %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse run meta %s: %w", path, err)
	}
	return meta, nil
}

// RunDirs lists production directories under root, newest first. The
// timestamped names sort lexically, so no date parsing is needed.
func RunDirs(root string) ([]string, error) {
	base := filepath.Join(root, "scripts", "productions")
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list productions %s: %w", base, err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(base, e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return dirs, nil
}
