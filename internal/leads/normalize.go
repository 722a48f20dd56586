package leads

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/scholarship-scout/internal/fetch"
)

// Tracking parameters stripped during normalization. Keys are compared
// lowercased; anything with a utm_ prefix is dropped as well.
var trackingParams = map[string]bool{
	"gclid":     true,
	"fbclid":    true,
	"msclkid":   true,
	"mc_cid":    true,
	"mc_eid":    true,
	"_ga":       true,
	"phpsessid": true,
	"igshid":    true,
	"mkt_tok":   true,
	"yclid":     true,
	"ref":       true,
	"fbid":      true,
	"s_cid":     true,
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	return strings.HasPrefix(key, "utm_") || trackingParams[key]
}

// NormalizeURL rewrites a URL into its canonical textual form: HTTPS scheme,
// lowercased host, no fragment, tracking parameters removed, remaining query
// keys lowercased and sorted, trailing slash trimmed except for the root
// path. Unparseable input comes back trimmed but otherwise untouched.
// Normalization is idempotent.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		kept := url.Values{}
		for key, vals := range u.Query() {
			if isTrackingParam(key) {
				continue
			}
			lk := strings.ToLower(key)
			kept[lk] = append(kept[lk], vals...)
		}
		u.RawQuery = kept.Encode()
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// CanonicalURLOf resolves the page's own idea of its canonical address: one
// GET, honour redirects, read <link rel="canonical">. Falls back to the
// normalized input when the page is unreachable or declares nothing.
func CanonicalURLOf(ctx context.Context, client *fetch.Client, rawURL string) string {
	norm := NormalizeURL(rawURL)
	if client == nil {
		return norm
	}

	out := client.Fetch(ctx, rawURL, nil)
	if !out.OK() || len(out.Body) == 0 {
		return norm
	}

	base := out.FinalURL
	if base == "" {
		base = rawURL
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(out.Body))
	if err != nil {
		return NormalizeURL(base)
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		href = strings.TrimSpace(href)
		if href != "" {
			if resolved := resolveRef(base, href); resolved != "" {
				return NormalizeURL(resolved)
			}
		}
	}
	return NormalizeURL(base)
}

func resolveRef(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
