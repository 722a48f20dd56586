package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/models"
)

// Detection reasons recorded on browser queue entries.
const (
	ReasonSmallHTML       = "suspiciously_small_html"
	ReasonSPAMarkers      = "spa_framework_markers"
	ReasonEnableJS        = "enable_javascript_message"
	ReasonAPINoExtraction = "api_detected_extraction_failed"
)

// BrowserDetection is the JS-detector verdict for one page.
type BrowserDetection struct {
	Needs        bool
	Reason       string
	Confidence   float64
	APIEndpoints []string
}

const (
	smallHTMLBytes   = 5 * 1024
	smallTextChars   = 500
	largeNoscriptLen = 200
)

var spaMarkers = []string{"__NEXT_DATA__", "window.__NUXT__", "data-reactroot", "app-root"}

var enableJSPhrases = []string{
	"enable javascript",
	"javascript is required",
	"javascript is disabled",
	"please turn on javascript",
	"requires javascript",
	"you need to enable javascript",
}

var apiPathRegex = regexp.MustCompile("(?i)[\"'`](/(?:api|graphql|v\\d+)/[^\"'`\\s]*)[\"'`]")

var apiCallRegex = regexp.MustCompile("(?i)(?:fetch\\(|axios\\.get\\(|\\$\\.ajax\\(\\{[^}]*url:\\s*)[\"'`]([^\"'`\\s]+)[\"'`]")

// DetectNeedsBrowser runs the four detection rules in order; the first match
// wins. The lead is consulted for whether static extraction already worked.
func DetectNeedsBrowser(html string, doc *goquery.Document, l *models.Lead, pageURL string) BrowserDetection {
	visible := ""
	if doc != nil {
		visible = doc.Find("body").Text()
	}

	// Rule 1: the response is too small to be a real content page.
	if len(html) < smallHTMLBytes || nonWhitespaceLen(visible) < smallTextChars {
		conf := 0.7
		switch {
		case len(html) < 1024:
			conf = 0.9
		case len(html) < 2560:
			conf = 0.8
		}
		return BrowserDetection{Needs: true, Reason: ReasonSmallHTML, Confidence: conf}
	}

	// Rule 2: an SPA shell with nothing extracted from the static HTML.
	if hasSPAMarkers(html, doc) && Weak(l) {
		return BrowserDetection{
			Needs:        true,
			Reason:       ReasonSPAMarkers,
			Confidence:   0.85,
			APIEndpoints: DetectAPIEndpoints(html, doc, pageURL),
		}
	}

	// Rule 3: the page says outright that it wants JavaScript.
	lower := strings.ToLower(html)
	for _, phrase := range enableJSPhrases {
		if strings.Contains(lower, phrase) {
			return BrowserDetection{Needs: true, Reason: ReasonEnableJS, Confidence: 0.9}
		}
	}
	if doc != nil {
		long := false
		doc.Find("noscript").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if len(cleanText(sel.Text())) > largeNoscriptLen {
				long = true
				return false
			}
			return true
		})
		if long {
			return BrowserDetection{Needs: true, Reason: ReasonEnableJS, Confidence: 0.9}
		}
	}

	// Rule 4: extraction came up empty but the page talks to an API.
	if Weak(l) {
		if endpoints := DetectAPIEndpoints(html, doc, pageURL); len(endpoints) > 0 {
			return BrowserDetection{
				Needs:        true,
				Reason:       ReasonAPINoExtraction,
				Confidence:   0.8,
				APIEndpoints: endpoints,
			}
		}
	}

	return BrowserDetection{}
}

func hasSPAMarkers(html string, doc *goquery.Document) bool {
	for _, marker := range spaMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	if doc == nil {
		return false
	}
	empty := false
	doc.Find("#root, #app").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.TrimSpace(sel.Text()) == "" {
			empty = true
			return false
		}
		return true
	})
	return empty
}

// DetectAPIEndpoints scans markup and inline scripts for API URLs the page
// calls, resolves them against the page, and adds a guessed listing endpoint
// from the canonical or base URL stem.
func DetectAPIEndpoints(html string, doc *goquery.Document, pageURL string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(endpoint string) {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" || seen[endpoint] || len(out) >= 10 {
			return
		}
		seen[endpoint] = true
		out = append(out, endpoint)
	}

	base, _ := url.Parse(pageURL)
	resolve := func(raw string) string {
		ref, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		if base != nil {
			return base.ResolveReference(ref).String()
		}
		return raw
	}

	for _, m := range apiPathRegex.FindAllStringSubmatch(html, -1) {
		if resolved := resolve(m[1]); resolved != "" {
			add(resolved)
		}
	}
	for _, m := range apiCallRegex.FindAllStringSubmatch(html, -1) {
		raw := m[1]
		if !strings.Contains(raw, "/api/") && !strings.Contains(raw, "/graphql") && !apiVersionPath(raw) {
			continue
		}
		if resolved := resolve(raw); resolved != "" {
			add(resolved)
		}
	}

	// Guess the conventional listing endpoint off the page's own stem.
	stem := pageURL
	if doc != nil {
		if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			stem = href
		} else if href, ok := doc.Find("base[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			stem = href
		}
	}
	if u, err := url.Parse(stem); err == nil && u.Host != "" {
		add(u.Scheme + "://" + u.Host + "/api/scholarships")
	}

	return out
}

var apiVersionRegex = regexp.MustCompile(`/v\d+/`)

func apiVersionPath(s string) bool {
	return apiVersionRegex.MatchString(s)
}
