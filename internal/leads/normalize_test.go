package leads

import "testing"

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://EXAMPLE.com/path/?utm_source=x#frag", "https://example.com/path"},
		{"https://example.com/", "https://example.com/"},
		{"http://example.com", "https://example.com/"},
		{"https://example.com/a/b/", "https://example.com/a/b"},
		{"https://example.com/p?b=2&A=1", "https://example.com/p?a=1&b=2"},
		{"https://example.com/p?gclid=x&fbclid=y&q=term", "https://example.com/p?q=term"},
		{"https://example.com/p?PHPSESSID=abc&page=2", "https://example.com/p?page=2"},
		{"https://example.com/p?utm_medium=email&utm_campaign=c", "https://example.com/p"},
		{"  https://example.com/x  ", "https://example.com/x"},
		{"not a url", "not a url"},
	}

	for _, tc := range cases {
		if got := NormalizeURL(tc.in); got != tc.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{
		"http://EXAMPLE.com/path/?utm_source=x&b=2&A=1#frag",
		"https://uni.ac.uk/scholarships/international/",
		"https://example.com/",
	}
	for _, in := range inputs {
		once := NormalizeURL(in)
		twice := NormalizeURL(once)
		if once != twice {
			t.Errorf("normalization not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
