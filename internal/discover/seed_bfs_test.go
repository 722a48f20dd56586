package discover

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/models"
)

func TestDiscoverFromSeedGates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><title>Directory</title></head><body>
<a href="/listings">More listings</a>
<a href="https://www.poppleton.ac.uk/scholarships/international">Scholarships for international students</a>
<a href="https://blocked.ac.uk/blog/scholarships">Scholarship blog post</a>
<a href="https://www.megacorp.com/scholarships/offer">Corporate scholarship offer</a>
<a href="https://www.poppleton.ac.uk/about">About the university</a>
<a href="mailto:admissions@poppleton.ac.uk">Email us</a>
</body></html>`)
	})
	mux.HandleFunc("/listings", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Listings</title></head><body>
<a href="https://www.uni.ac.uk/funding/award">Funding award details</a>
<a href="https://www.poppleton.ac.uk/scholarships/international">Scholarships for international students</a>
<a href="/deep">Deeper page</a>
</body></html>`)
	})
	mux.HandleFunc("/deep", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="https://www.toodeep.ac.uk/scholarships/gold">Scholarship gold</a>
</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	eng := newTestEngine(t, testLimits())
	src := config.Source{
		Name:                 "aggregator",
		URL:                  srv.URL,
		MaxDepth:             1,
		AllowDomainsOutbound: []string{"*.ac.uk"},
		DenyPatterns:         []string{"/blog/"},
	}
	cands := eng.DiscoverFromSeed(context.Background(), src)

	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(cands), cands)
	}

	byURL := map[string]models.Candidate{}
	for _, c := range cands {
		byURL[c.URL] = c
		if c.DiscoverySource != models.DiscoveryExternalLink {
			t.Fatalf("expected external_link channel, got %q", c.DiscoverySource)
		}
		if strings.Contains(c.URL, "127.0.0.1") {
			t.Fatalf("same-origin url must never be emitted: %q", c.URL)
		}
	}

	if _, ok := byURL["https://www.poppleton.ac.uk/scholarships/international"]; !ok {
		t.Fatalf("missing depth-0 outbound candidate, got %+v", cands)
	}
	deeper, ok := byURL["https://www.uni.ac.uk/funding/award"]
	if !ok {
		t.Fatalf("missing depth-1 outbound candidate, got %+v", cands)
	}
	if deeper.DiscoveredFrom != srv.URL+"/listings" {
		t.Fatalf("expected discovered_from listings page, got %q", deeper.DiscoveredFrom)
	}

	for url := range byURL {
		if strings.Contains(url, "blocked.ac.uk") {
			t.Fatal("deny pattern did not reject the blog link")
		}
		if strings.Contains(url, "megacorp.com") {
			t.Fatal("domain allowlist did not reject megacorp.com")
		}
		if strings.Contains(url, "poppleton.ac.uk/about") {
			t.Fatal("confidence gate did not reject the about page")
		}
		if strings.Contains(url, "toodeep.ac.uk") {
			t.Fatal("max_depth was not honoured")
		}
	}
}

func TestDiscoverFromSeedRespectsTotalCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>")
		for i := 0; i < 10; i++ {
			fmt.Fprintf(w, `<a href="https://u%d.ac.uk/scholarships/x">Scholarship %d</a>`, i, i)
		}
		fmt.Fprint(w, "</body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	limits := testLimits()
	limits.MaxTotalURLs = 4
	eng := newTestEngine(t, limits)
	src := config.Source{Name: "many", URL: srv.URL, MaxDepth: 1, AllowDomainsOutbound: []string{"*.ac.uk"}}

	cands := eng.DiscoverFromSeed(context.Background(), src)
	if len(cands) != 4 {
		t.Fatalf("expected cap of 4 emitted candidates, got %d", len(cands))
	}
}

func TestResolveLink(t *testing.T) {
	base := "https://uni.ac.uk/funding/index.html"
	tests := []struct {
		href string
		want string
	}{
		{"/scholarships/a", "https://uni.ac.uk/scholarships/a"},
		{"detail.html", "https://uni.ac.uk/funding/detail.html"},
		{"https://other.org/x", "https://other.org/x"},
		{"#section", ""},
		{"mailto:x@y.z", ""},
		{"javascript:void(0)", ""},
		{"tel:+4412345", ""},
		{"ftp://files.uni.ac.uk/doc", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := resolveLink(base, tt.href); got != tt.want {
			t.Fatalf("resolveLink(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}
