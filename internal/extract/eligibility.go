package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/david/scholarship-scout/internal/models"
)

// Country names recognised in eligibility prose, mapped to ISO codes. The
// set leans towards Commonwealth and common scholarship audiences.
var countryNames = map[string]string{
	"taiwan": "TW", "taiwanese": "TW", "chinese taipei": "TW", "republic of china": "TW",
	"united kingdom": "GB", "great britain": "GB", "britain": "GB", "england": "GB",
	"scotland": "GB", "wales": "GB", "northern ireland": "GB",
	"united states": "US", "usa": "US",
	"india": "IN", "pakistan": "PK", "bangladesh": "BD", "sri lanka": "LK",
	"malaysia": "MY", "singapore": "SG", "brunei": "BN",
	"nigeria": "NG", "ghana": "GH", "kenya": "KE", "south africa": "ZA",
	"uganda": "UG", "tanzania": "TZ", "zambia": "ZM", "zimbabwe": "ZW",
	"cameroon": "CM", "rwanda": "RW", "malawi": "MW", "botswana": "BW",
	"mauritius": "MU", "jamaica": "JM", "trinidad and tobago": "TT",
	"canada": "CA", "australia": "AU", "new zealand": "NZ",
	"china": "CN", "hong kong": "HK", "japan": "JP", "south korea": "KR",
	"vietnam": "VN", "thailand": "TH", "indonesia": "ID", "philippines": "PH",
	"nepal": "NP", "myanmar": "MM", "cambodia": "KH",
	"germany": "DE", "france": "FR", "spain": "ES", "italy": "IT",
	"netherlands": "NL", "ireland": "IE", "cyprus": "CY", "malta": "MT",
	"brazil": "BR", "mexico": "MX", "chile": "CL", "egypt": "EG", "turkey": "TR",
	"fiji": "FJ", "papua new guinea": "PG",
}

// Bare ISO codes accepted when they appear as standalone uppercase tokens.
var countryCodes = map[string]bool{
	"TW": true, "GB": true, "UK": true, "US": true, "IN": true, "PK": true,
	"BD": true, "LK": true, "MY": true, "SG": true, "BN": true, "NG": true,
	"GH": true, "KE": true, "ZA": true, "UG": true, "TZ": true, "ZM": true,
	"ZW": true, "CM": true, "RW": true, "MW": true, "BW": true, "MU": true,
	"JM": true, "TT": true, "CA": true, "AU": true, "NZ": true, "CN": true,
	"HK": true, "JP": true, "KR": true, "VN": true, "TH": true, "ID": true,
	"PH": true, "NP": true, "MM": true, "KH": true, "DE": true, "FR": true,
	"ES": true, "IT": true, "NL": true, "IE": true, "CY": true, "MT": true,
	"BR": true, "MX": true, "CL": true, "EG": true, "TR": true, "FJ": true,
	"PG": true, "EU": true, "EEA": true,
}

var broadPhrases = []string{
	"all countries",
	"any country",
	"all nationalities",
	"any nationality",
	"international students",
	"international applicants",
	"students of any nationality",
	"worldwide",
	"open to all",
	"no nationality restrictions",
	"home and international",
}

var domesticOnlyPhrases = []string{
	"home students only",
	"uk students only",
	"domestic students only",
	"domestic applicants only",
	"home fee status",
	"settled status in the uk",
}

var negationRegex = regexp.MustCompile(`(?i)(?:not open to|not available to|not eligible|except|excluding|other than|ineligible)`)

var (
	countryNameRegex = buildCountryNameRegex()
	isoTokenRegex    = regexp.MustCompile(`\b[A-Z]{2,3}\b`)
)

func buildCountryNameRegex() *regexp.Regexp {
	names := make([]string, 0, len(countryNames))
	for name := range countryNames {
		names = append(names, regexp.QuoteMeta(name))
	}
	// Longest first so "republic of china" wins over "china".
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)\b`)
}

// ParseEligibleCountries reads eligibility prose and returns the country
// codes it names plus a Taiwan verdict: true when Taiwan is included or the
// award is open to all, false when a specific audience excludes it, unknown
// when the text says nothing usable. Pure pattern matching, no language
// understanding.
func ParseEligibleCountries(text string) ([]string, models.TriState) {
	if strings.TrimSpace(text) == "" {
		return nil, models.TriUnknown
	}
	lower := strings.ToLower(text)

	found := map[string]bool{}
	taiwanExcluded := false

	for _, m := range countryNameRegex.FindAllStringIndex(lower, -1) {
		code := countryNames[lower[m[0]:m[1]]]
		if code == "TW" && negatedBefore(lower, m[0]) {
			taiwanExcluded = true
			continue
		}
		found[code] = true
	}
	for _, m := range isoTokenRegex.FindAllStringIndex(text, -1) {
		token := text[m[0]:m[1]]
		if !countryCodes[token] {
			continue
		}
		if token == "UK" {
			token = "GB"
		}
		if token == "TW" && negatedBefore(lower, m[0]) {
			taiwanExcluded = true
			continue
		}
		found[token] = true
	}

	countries := make([]string, 0, len(found))
	for code := range found {
		countries = append(countries, code)
	}
	sort.Strings(countries)

	if taiwanExcluded {
		return countries, models.TriFalse
	}
	if found["TW"] {
		return countries, models.TriTrue
	}
	if len(countries) > 0 {
		// A specific audience that does not name Taiwan.
		return countries, models.TriFalse
	}

	for _, phrase := range broadPhrases {
		idx := strings.Index(lower, phrase)
		if idx == -1 {
			continue
		}
		if negatedBefore(lower, idx) {
			return nil, models.TriFalse
		}
		return nil, models.TriTrue
	}
	for _, phrase := range domesticOnlyPhrases {
		if strings.Contains(lower, phrase) {
			return nil, models.TriFalse
		}
	}

	return nil, models.TriUnknown
}

// negatedBefore reports whether an exclusion phrase sits shortly before the
// match, as in "not open to applicants from Taiwan".
func negatedBefore(lower string, pos int) bool {
	if pos > len(lower) {
		pos = len(lower)
	}
	lo := pos - 60
	if lo < 0 {
		lo = 0
	}
	return negationRegex.MatchString(lower[lo:pos])
}

// ApplyEligibility parses eligibility prose into the lead's structured
// fields, leaving existing values in place.
func ApplyEligibility(l *models.Lead, text, pageURL, method string) {
	countries, verdict := ParseEligibleCountries(text)
	if len(countries) > 0 && len(l.EligibleCountries) == 0 {
		l.EligibleCountries = countries
	}
	if verdict.Known() && !l.IsTaiwanEligible.Known() {
		l.IsTaiwanEligible = verdict
		l.AddEvidence(models.ExtractionEvidence{
			Attribute: "is_taiwan_eligible",
			Snippet:   truncateText(cleanText(text), 160),
			URL:       pageURL,
			Method:    method,
		})
	}
}
