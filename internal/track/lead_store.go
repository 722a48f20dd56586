package track

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/david/scholarship-scout/internal/models"
)

// LoadLeads reads the lead catalogue. A missing file is an empty catalogue.
func LoadLeads(path string) ([]models.Lead, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var leads []models.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return leads, nil
}

// SaveLeads writes the catalogue sorted by name then URL so repeated runs
// produce identical files. The write goes through a temp file and rename.
func SaveLeads(path string, leads []models.Lead) error {
	sorted := make([]models.Lead, len(leads))
	copy(sorted, leads)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].URL < sorted[j].URL
	})

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal leads: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
