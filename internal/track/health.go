package track

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/david/scholarship-scout/internal/models"
)

// HealthFilter controls which sources a run is willing to touch.
type HealthFilter struct {
	IncludeTypes     []string
	ExcludeTypes     []string
	HonorAutoDisable bool
}

// HealthTracker keeps the per-source reliability table, persisted as a JSON
// array at tracking/source_health.json.
type HealthTracker struct {
	path        string
	maxFailures int

	mu      sync.Mutex
	records map[string]*models.SourceHealth // by source URL
}

// LoadHealth reads the table from path; a missing file starts empty.
func LoadHealth(path string, maxFailures int) (*HealthTracker, error) {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	t := &HealthTracker{
		path:        path,
		maxFailures: maxFailures,
		records:     make(map[string]*models.SourceHealth),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source health %s: %w", path, err)
	}

	var list []models.SourceHealth
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse source health %s: %w", path, err)
	}
	for i := range list {
		rec := list[i]
		t.records[rec.URL] = &rec
	}
	return t, nil
}

// Save writes the table back, sorted by name for stable diffs.
func (t *HealthTracker) Save() error {
	t.mu.Lock()
	list := make([]models.SourceHealth, 0, len(t.records))
	for _, rec := range t.records {
		list = append(list, *rec)
	}
	t.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].URL < list[j].URL
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode source health: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write source health %s: %w", t.path, err)
	}
	return nil
}

// Record folds one scrape attempt into the table and returns the updated
// record. Reaching the failure ceiling auto-disables the source.
func (t *HealthTracker) Record(url, name, sourceType string, ok bool, httpCode int, errMsg string) models.SourceHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[url]
	if !exists {
		rec = &models.SourceHealth{URL: url, Name: name, SourceType: sourceType}
		t.records[url] = rec
	}
	if name != "" {
		rec.Name = name
	}
	if sourceType != "" {
		rec.SourceType = sourceType
	}

	rec.TotalAttempts++
	rec.LastChecked = time.Now().UTC()
	rec.LastHTTPCode = httpCode
	rec.LastError = errMsg

	if ok {
		rec.TotalSuccesses++
		rec.ConsecutiveFailures = 0
		rec.LastStatus = models.StatusOK
		return *rec
	}

	rec.ConsecutiveFailures++
	rec.LastStatus = models.StatusUnknown
	if httpCode > 0 {
		rec.LastStatus = statusForCode(httpCode)
	}
	if rec.ConsecutiveFailures >= t.maxFailures && !rec.AutoDisabled {
		rec.AutoDisabled = true
		rec.DisabledReason = fmt.Sprintf("auto-disabled after %d consecutive failures", rec.ConsecutiveFailures)
	}
	return *rec
}

func statusForCode(code int) string {
	switch {
	case code == 404 || code == 410:
		return models.StatusNotFound
	case code == 403:
		return models.StatusForbidden
	case code == 429:
		return models.StatusRateLimited
	case code >= 500:
		return models.StatusServerError
	}
	return models.StatusUnknown
}

// ShouldSkip decides whether a source should be left alone this run and why.
func (t *HealthTracker) ShouldSkip(url, sourceType string, filter HealthFilter) (string, bool) {
	for _, excluded := range filter.ExcludeTypes {
		if sourceType == excluded {
			return fmt.Sprintf("source type %s excluded", sourceType), true
		}
	}
	if len(filter.IncludeTypes) > 0 {
		found := false
		for _, included := range filter.IncludeTypes {
			if sourceType == included {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("source type %s not in include list", sourceType), true
		}
	}

	if filter.HonorAutoDisable {
		t.mu.Lock()
		rec, exists := t.records[url]
		disabled := exists && rec.AutoDisabled
		reason := ""
		if disabled {
			reason = rec.DisabledReason
		}
		t.mu.Unlock()
		if disabled {
			return reason, true
		}
	}

	return "", false
}

// Reenable clears the failure streak and the disabled flag.
func (t *HealthTracker) Reenable(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[url]
	if !exists {
		return false
	}
	rec.ConsecutiveFailures = 0
	rec.AutoDisabled = false
	rec.DisabledReason = ""
	return true
}

// All returns every record sorted by name.
func (t *HealthTracker) All() []models.SourceHealth {
	t.mu.Lock()
	list := make([]models.SourceHealth, 0, len(t.records))
	for _, rec := range t.records {
		list = append(list, *rec)
	}
	t.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Disabled returns the auto-disabled records, sorted by name.
func (t *HealthTracker) Disabled() []models.SourceHealth {
	var out []models.SourceHealth
	for _, rec := range t.All() {
		if rec.AutoDisabled {
			out = append(out, rec)
		}
	}
	return out
}
