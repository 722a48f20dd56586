package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
	"github.com/david/scholarship-scout/internal/track"
)

// APIStrategy reads listing data straight from JSON endpoints recorded in
// the endpoint registry, bypassing HTML entirely. Endpoints get into the
// registry either by hand or from browser-detection sniffing them out of
// script tags.
type APIStrategy struct{}

func (s *APIStrategy) Scrape(ctx context.Context, src config.Source, deps *Deps) ScrapeResult {
	if deps.Endpoints == nil {
		return ScrapeResult{Status: StatusSkipped, ErrorMessage: "no API endpoint registry loaded"}
	}
	host := hostOf(src.URL)
	eps := deps.Endpoints.ForDomain(host)
	if len(eps) == 0 {
		return ScrapeResult{Status: StatusSkipped, ErrorMessage: "no known API endpoints for " + host}
	}

	res := ScrapeResult{}
	now := time.Now().UTC()
	var lastErr string
	var lastCode int
	succeeded := 0
	for _, ep := range eps {
		if ctx.Err() != nil {
			break
		}
		items, code, err := fetchEndpoint(ctx, deps, ep)
		if code != 0 {
			lastCode = code
		}
		if err != nil {
			lastErr = err.Error()
			log.Printf("[scrape] ⚠️ %s: endpoint %s: %v", src.Name, ep.URL, err)
			continue
		}
		succeeded++
		for _, item := range items {
			if l := leadFromAPIItem(item, ep, src, code, now); l != nil {
				res.Leads = append(res.Leads, *l)
			}
		}
	}

	if succeeded == 0 {
		status := models.StatusUnknown
		if lastCode != 0 {
			status = fetch.StateStatusForCode(lastCode)
		}
		return ScrapeResult{Status: status, HTTPCode: lastCode, ErrorMessage: lastErr}
	}
	res.Status = models.StatusOK
	res.HTTPCode = lastCode
	log.Printf("[scrape] %s: %d leads from %d API endpoints", src.Name, len(res.Leads), succeeded)
	return res
}

// fetchEndpoint pulls one endpoint and returns the list its json_path
// points at. An empty path means the response body itself is the list.
func fetchEndpoint(ctx context.Context, deps *Deps, ep track.EndpointConfig) ([]interface{}, int, error) {
	out := deps.Client.Fetch(ctx, endpointURL(ep), nil)
	if !out.OK() {
		if out.Err != "" {
			return nil, out.StatusCode, errors.New(out.Err)
		}
		return nil, out.StatusCode, fmt.Errorf("endpoint returned HTTP %d", out.StatusCode)
	}

	var root interface{}
	if err := json.Unmarshal(out.Body, &root); err != nil {
		return nil, out.StatusCode, fmt.Errorf("failed to parse endpoint response: %w", err)
	}
	v := jsonPathValue(root, ep.JSONPath)
	arr, ok := v.([]interface{})
	if !ok {
		return nil, out.StatusCode, fmt.Errorf("json path %q did not yield a list", ep.JSONPath)
	}
	return arr, out.StatusCode, nil
}

func endpointURL(ep track.EndpointConfig) string {
	if len(ep.Params) == 0 {
		return ep.URL
	}
	u, err := url.Parse(ep.URL)
	if err != nil {
		return ep.URL
	}
	q := u.Query()
	for k, v := range ep.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// jsonPathValue walks a dot-separated path through nested objects.
func jsonPathValue(root interface{}, path string) interface{} {
	if path == "" {
		return root
	}
	cur := root
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func leadFromAPIItem(item interface{}, ep track.EndpointConfig, src config.Source, code int, now time.Time) *models.Lead {
	m, ok := item.(map[string]interface{})
	if !ok {
		return nil
	}
	name := stringAt(m, keyOr(ep.NameKey, "name"))
	if name == "" {
		name = stringAt(m, "title")
	}
	if name == "" {
		return nil
	}

	leadURL := resolveHref(ep.URL, stringAt(m, keyOr(ep.URLKey, "url")))
	if leadURL == "" {
		leadURL = ep.URL
	}
	l := &models.Lead{
		Name:          name,
		URL:           leadURL,
		CanonicalURL:  leads.NormalizeURL(leadURL),
		SourceDomain:  hostOf(ep.URL),
		Source:        src.Name,
		SourceType:    models.SourceAPI,
		TrustTier:     tierForSourceType(src.Type),
		Amount:        stringAt(m, keyOr(ep.AmountKey, "amount")),
		HTTPStatus:    code,
		FirstSeenAt:   now,
		LastCheckedAt: now,
		CheckCount:    1,
	}
	l.AddEvidence(models.ExtractionEvidence{
		Attribute: "name",
		Snippet:   name,
		URL:       ep.URL,
		Method:    models.MethodAPIDirect,
	})

	if raw := stringAt(m, keyOr(ep.DeadlineKey, "deadline")); raw != "" {
		l.Deadline = raw
		if t, ok := leads.ParseDeadline(raw); ok {
			l.DeadlineDate = t.Format("2006-01-02")
			l.DeadlineConfidence = models.DeadlineConfirmed
		}
	}
	return l
}

func keyOr(key, fallback string) string {
	if key != "" {
		return key
	}
	return fallback
}

// stringAt reads a field as text, rendering bare JSON numbers too since
// amounts often come through as numerics.
func stringAt(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
