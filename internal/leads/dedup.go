package leads

import (
	"log"

	"github.com/david/scholarship-scout/internal/models"
)

// DedupStats summarises one dedup pass.
type DedupStats struct {
	Input            int
	Kept             int
	DuplicateContent int
	LowerQuality     int
}

// QualityScore ranks how complete and trustworthy a lead's data is. Used to
// pick the winner when two leads share an entity key.
func QualityScore(l *models.Lead) int {
	score := 0
	if l.DeadlineDate != "" {
		score += 3
	}
	if len(l.Eligibility) > 0 {
		score += 2
	}
	if l.IsTaiwanEligible.Known() {
		score += 2
	}
	if !models.NeedsValue(l.Amount) {
		score++
	}
	if l.HTTPStatus == 200 {
		score += 2
	}
	if l.OfficialSourceURL != "" {
		score++
	}
	return score
}

// betterLead reports whether a should replace b. Quality decides; ties fall
// to the trust tier.
func betterLead(a, b *models.Lead) bool {
	qa, qb := QualityScore(a), QualityScore(b)
	if qa != qb {
		return qa > qb
	}
	return models.TierRank(a.TrustTier) > models.TierRank(b.TrustTier)
}

// Dedup collapses the lead list to one record per entity key. A lead whose
// content hash is already bound to a different entity key is dropped as a
// duplicate reached through another URL. Among leads sharing an entity key
// the higher-quality record wins.
func Dedup(input []models.Lead) ([]models.Lead, DedupStats) {
	stats := DedupStats{Input: len(input)}

	kept := make([]models.Lead, 0, len(input))
	byKey := make(map[string]int, len(input))
	contentOwner := make(map[string]string, len(input))

	for i := range input {
		lead := input[i]
		key := EntityKey(&lead)
		hash := ContentHash(&lead)

		if owner, seen := contentOwner[hash]; seen && owner != key {
			stats.DuplicateContent++
			continue
		}
		contentOwner[hash] = key

		idx, exists := byKey[key]
		if !exists {
			byKey[key] = len(kept)
			kept = append(kept, lead)
			continue
		}

		if betterLead(&lead, &kept[idx]) {
			kept[idx] = lead
		}
		stats.LowerQuality++
	}

	stats.Kept = len(kept)
	if stats.Input != stats.Kept {
		log.Printf("[dedup] %d leads in, %d kept (%d duplicate content, %d lower quality)",
			stats.Input, stats.Kept, stats.DuplicateContent, stats.LowerQuality)
	}
	return kept, stats
}
