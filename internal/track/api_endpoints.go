package track

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// EndpointConfig describes one JSON API endpoint discovered behind a
// JavaScript site, enough to query it directly on later runs.
type EndpointConfig struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Params      map[string]string `json:"params,omitempty"`
	JSONPath    string            `json:"json_path,omitempty"`
	NameKey     string            `json:"name_key,omitempty"`
	AmountKey   string            `json:"amount_key,omitempty"`
	DeadlineKey string            `json:"deadline_key,omitempty"`
	URLKey      string            `json:"url_key,omitempty"`
}

// APIEndpoints maps a host to the endpoints known to serve its listing data.
type APIEndpoints struct {
	Endpoints map[string][]EndpointConfig `json:"endpoints"`
}

// LoadAPIEndpoints reads the endpoint registry. A missing file yields an
// empty registry.
func LoadAPIEndpoints(path string) (*APIEndpoints, error) {
	reg := &APIEndpoints{Endpoints: map[string][]EndpointConfig{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if reg.Endpoints == nil {
		reg.Endpoints = map[string][]EndpointConfig{}
	}
	return reg, nil
}

// ForDomain returns the endpoints registered for a host, matching the bare
// host with or without a www prefix.
func (a *APIEndpoints) ForDomain(host string) []EndpointConfig {
	host = strings.ToLower(host)
	if eps, ok := a.Endpoints[host]; ok {
		return eps
	}
	if trimmed := strings.TrimPrefix(host, "www."); trimmed != host {
		if eps, ok := a.Endpoints[trimmed]; ok {
			return eps
		}
	}
	return a.Endpoints["www."+host]
}

// Add registers an endpoint for a host unless the same URL is already known.
func (a *APIEndpoints) Add(host string, ep EndpointConfig) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, existing := range a.Endpoints[host] {
		if existing.URL == ep.URL {
			return false
		}
	}
	a.Endpoints[host] = append(a.Endpoints[host], ep)
	return true
}

// Save writes the registry back to disk.
func (a *APIEndpoints) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal endpoints: %w", err)
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
