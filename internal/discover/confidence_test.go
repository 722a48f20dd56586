package discover

import (
	"math"
	"testing"
)

func TestScorerWeights(t *testing.T) {
	s := NewScorer(testKeywords())

	tests := []struct {
		name   string
		url    string
		anchor string
		title  string
		want   float64
	}{
		{"path only", "https://uni.ac.uk/scholarships/intl", "", "", 0.5},
		{"path and anchor", "https://uni.ac.uk/scholarships/intl", "Scholarships for students", "", 0.8},
		{"all three", "https://uni.ac.uk/scholarships/intl", "Scholarships", "Funding at Poppleton", 1.0},
		{"anchor only", "https://uni.ac.uk/opportunities", "PhD funding available", "", 0.3},
		{"title only", "https://uni.ac.uk/opportunities", "", "Bursary listing", 0.2},
		{"nothing", "https://uni.ac.uk/research", "", "", 0},
		{"guide penalty on url", "https://uni.ac.uk/funding/how-to-apply", "", "", 0.1},
		{"guide penalty clamps at zero", "https://uni.ac.uk/how-to-pay", "", "", 0},
		{"guide anchor cancels keyword", "https://uni.ac.uk/pages/x", "Guide to funding", "", 0},
		{"hyphenated funding path", "https://gov.example/financial-aid/overseas", "", "", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := s.Score(tt.url, tt.anchor, tt.title)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestScorerReasonBreakdown(t *testing.T) {
	s := NewScorer(testKeywords())
	_, reason := s.Score("https://uni.ac.uk/scholarships/intl", "Scholarships", "")
	if reason != "funding path; anchor keyword" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestComposeSearchURL(t *testing.T) {
	tests := []struct {
		endpoint string
		keyword  string
		want     string
	}{
		{"https://x.test/search?q=", "masters funding", "https://x.test/search?q=masters+funding"},
		{"https://x.test/find/{query}/all", "phd", "https://x.test/find/phd/all"},
		{"https://x.test/search?q=", "  ", ""},
		{"", "funding", ""},
	}
	for _, tt := range tests {
		if got := composeSearchURL(tt.endpoint, tt.keyword); got != tt.want {
			t.Fatalf("composeSearchURL(%q, %q) = %q, want %q", tt.endpoint, tt.keyword, got, tt.want)
		}
	}
}

func TestDomainAllowed(t *testing.T) {
	tests := []struct {
		name  string
		allow []string
		host  string
		want  bool
	}{
		{"wildcard suffix", []string{"*.ac.uk"}, "www.poppleton.ac.uk", true},
		{"wildcard bare domain", []string{"*.ac.uk"}, "ac.uk", true},
		{"wildcard rejects lookalike", []string{"*.ac.uk"}, "notac.uk", false},
		{"substring entry", []string{"chevening"}, "www.chevening.org", true},
		{"substring miss", []string{"chevening"}, "www.megacorp.com", false},
		{"empty list allows outbound", nil, "anything.example", true},
		{"case insensitive", []string{"*.AC.UK"}, "WWW.POPPLETON.AC.UK", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domainAllowed(tt.allow, tt.host); got != tt.want {
				t.Fatalf("domainAllowed(%v, %q) = %v, want %v", tt.allow, tt.host, got, tt.want)
			}
		})
	}
}
