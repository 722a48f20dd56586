package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

type enrichResponse struct {
	Error               string  `json:"error"`
	Domain              string  `json:"domain"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MaxItems            int     `json:"max_items"`
	ItemsEligible       int     `json:"items_eligible"`
	ItemsEnriched       int     `json:"items_enriched"`
	ItemsFailed         int     `json:"items_failed"`
	LeadCount           int     `json:"lead_count"`
}

type domainMetric struct {
	Domain     string
	DryRun     bool
	HTTPStatus int
	Duration   time.Duration
	Eligible   int
	Enriched   int
	Failed     int
	Error      string
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8081", "API base URL")
	adminSecretFlag := flag.String("admin-secret", "", "Admin secret (or use ADMIN_SECRET env)")
	domainsCSV := flag.String("domains", "", "Comma-separated list of source domains")
	domainsFile := flag.String("domains-file", "", "Path to file with one domain per line")
	maxItems := flag.Int("max-items", 50, "Max leads enriched per domain")
	confidenceThreshold := flag.Float64("confidence-threshold", 0.6, "Confidence threshold [0,1]")
	rateLimitMs := flag.Int("rate-limit-ms", 1000, "Delay between domain calls in milliseconds")
	timeoutSec := flag.Int("timeout-sec", 120, "HTTP timeout in seconds")
	dryRun := flag.Bool("dry-run", false, "Print planned calls only; do not execute")
	flag.Parse()

	adminSecret := strings.TrimSpace(*adminSecretFlag)
	if adminSecret == "" {
		adminSecret = strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	}
	if adminSecret == "" {
		exitErr(errors.New("missing admin secret: use -admin-secret or ADMIN_SECRET env"))
	}

	domains, err := loadDomains(*domainsCSV, *domainsFile)
	if err != nil {
		exitErr(err)
	}
	if len(domains) == 0 {
		exitErr(errors.New("no domains provided: use -domains or -domains-file"))
	}

	if *maxItems <= 0 {
		exitErr(errors.New("max-items must be > 0"))
	}
	if *confidenceThreshold < 0 || *confidenceThreshold > 1 {
		exitErr(errors.New("confidence-threshold must be between 0 and 1"))
	}
	if *timeoutSec <= 0 {
		exitErr(errors.New("timeout-sec must be > 0"))
	}

	client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}
	metrics := make([]domainMetric, 0, len(domains))

	for idx, domain := range domains {
		metric := domainMetric{Domain: domain, DryRun: *dryRun}
		start := time.Now()

		reqURL := buildURL(*baseURL, domain, *maxItems, *confidenceThreshold)
		if *dryRun {
			metric.Duration = time.Since(start)
			fmt.Printf("[DRY-RUN] %s\n", reqURL)
			metrics = append(metrics, metric)
		} else {
			response, statusCode, callErr := callEnrich(client, reqURL, adminSecret)
			metric.Duration = time.Since(start)
			metric.HTTPStatus = statusCode
			if callErr != nil {
				metric.Error = callErr.Error()
			} else {
				metric.Eligible = response.ItemsEligible
				metric.Enriched = response.ItemsEnriched
				metric.Failed = response.ItemsFailed
			}
			metrics = append(metrics, metric)
		}

		if idx < len(domains)-1 && *rateLimitMs > 0 {
			time.Sleep(time.Duration(*rateLimitMs) * time.Millisecond)
		}
	}

	printReport(metrics)
}

func loadDomains(csv, filePath string) ([]string, error) {
	set := map[string]struct{}{}

	for _, part := range strings.Split(csv, ",") {
		d := strings.TrimSpace(strings.ToLower(part))
		if d != "" {
			set[d] = struct{}{}
		}
	}

	if strings.TrimSpace(filePath) != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read domains-file: %w", err)
		}
		for _, line := range strings.Split(string(content), "\n") {
			d := strings.TrimSpace(strings.ToLower(line))
			if d == "" || strings.HasPrefix(d, "#") {
				continue
			}
			set[d] = struct{}{}
		}
	}

	domains := make([]string, 0, len(set))
	for d := range set {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains, nil
}

func buildURL(baseURL, domain string, maxItems int, confidence float64) string {
	u, _ := url.Parse(strings.TrimRight(baseURL, "/") + "/api/v1/admin/enrich")
	q := u.Query()
	q.Set("domain", domain)
	q.Set("max_items", strconv.Itoa(maxItems))
	q.Set("confidence_threshold", strconv.FormatFloat(confidence, 'f', 2, 64))
	u.RawQuery = q.Encode()
	return u.String()
}

func callEnrich(client *http.Client, reqURL, adminSecret string) (*enrichResponse, int, error) {
	req, err := http.NewRequest(http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("X-Admin-Secret", adminSecret)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var payload enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if payload.Error == "" {
			return &payload, resp.StatusCode, fmt.Errorf("http %d", resp.StatusCode)
		}
		return &payload, resp.StatusCode, fmt.Errorf("http %d: %s", resp.StatusCode, payload.Error)
	}

	return &payload, resp.StatusCode, nil
}

func printReport(metrics []domainMetric) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Enrichment Batch Report")
	t.AppendHeader(table.Row{"Domain", "Dry", "HTTP", "Eligible", "Enriched", "Failed", "Sec", "Error"})

	totalEligible, totalEnriched, totalFailed, errCount := 0, 0, 0, 0
	for _, m := range metrics {
		if m.Error != "" {
			errCount++
		}
		totalEligible += m.Eligible
		totalEnriched += m.Enriched
		totalFailed += m.Failed

		t.AppendRow(table.Row{
			m.Domain, m.DryRun, m.HTTPStatus,
			m.Eligible, m.Enriched, m.Failed,
			fmt.Sprintf("%.2f", m.Duration.Seconds()), m.Error,
		})
	}
	t.AppendFooter(table.Row{"Total", "", "", totalEligible, totalEnriched, totalFailed, "", fmt.Sprintf("%d errors", errCount)})
	t.Render()
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
