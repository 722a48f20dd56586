package leads

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/david/scholarship-scout/internal/models"
)

// Study levels inferred for the entity key.
const (
	LevelPostgraduate  = "postgraduate"
	LevelUndergraduate = "undergraduate"
	LevelPhD           = "phd"
	LevelUnknown       = "unknown"
)

var (
	phdKeywords      = []string{"phd", "doctoral", "doctorate", "dphil"}
	postgradKeywords = []string{"postgraduate", "master", "msc", "mba", "taught degree"}
	undergradKeyword = []string{"undergraduate", "bachelor", "bsc", "bachelors"}
)

// normalizeField lowercases and collapses whitespace.
func normalizeField(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// InferLevel guesses the study level from the lead's text. PhD markers win
// over postgraduate ones since doctoral pages routinely mention both.
func InferLevel(l *models.Lead) string {
	text := normalizeField(l.Name + " " + l.Notes + " " + strings.Join(l.Eligibility, " "))
	for _, kw := range phdKeywords {
		if strings.Contains(text, kw) {
			return LevelPhD
		}
	}
	for _, kw := range postgradKeywords {
		if strings.Contains(text, kw) {
			return LevelPostgraduate
		}
	}
	for _, kw := range undergradKeyword {
		if strings.Contains(text, kw) {
			return LevelUndergraduate
		}
	}
	return LevelUnknown
}

// Hash16 is the first 16 hex characters of the SHA-256 of
// "normalized name|normalized url".
func Hash16(name, url string) string {
	sum := sha256.Sum256([]byte(normalizeField(name) + "|" + normalizeField(url)))
	return hex.EncodeToString(sum[:])[:16]
}

// deadlineKeyPart buckets a lead's deadline for the entity key: the
// structured date when known, a parsed ISO date when the freeform value
// parses, "unknown" for placeholders, otherwise the normalized raw string.
func deadlineKeyPart(l *models.Lead) string {
	if l.DeadlineDate != "" {
		return l.DeadlineDate
	}
	d := normalizeField(l.Deadline)
	switch d {
	case "", "tbd", "unknown", "check website", "see website":
		return "unknown"
	}
	if t, ok := ParseDeadline(l.Deadline); ok {
		return t.Format("2006-01-02")
	}
	return d
}

// EntityKey builds the deterministic identity string used to recognise the
// same scholarship across pages and runs:
// provider|title|deadline|award|level|hash16.
func EntityKey(l *models.Lead) string {
	provider := strings.ToLower(l.SourceDomain)
	if provider == "" {
		provider = normalizeField(l.Source)
	}

	target := l.CanonicalURL
	if target == "" {
		target = l.URL
	}

	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		provider,
		normalizeField(l.Name),
		deadlineKeyPart(l),
		normalizeField(l.Amount),
		InferLevel(l),
		Hash16(l.Name, target),
	)
}

// ContentHash fingerprints the lead's extracted substance so identical
// records reached through different URLs collapse in dedup.
func ContentHash(l *models.Lead) string {
	parts := []string{
		normalizeField(l.Name),
		normalizeField(l.Amount),
		normalizeField(l.Deadline),
		normalizeField(strings.Join(l.Eligibility, " ")),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
