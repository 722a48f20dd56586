package main

import (
	"context"
	"flag"
	"log"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/discover"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/track"
)

// Re-checks every discovered candidate URL against the live site and writes
// the annotated inbox back, so a review pass sees current tags and confidence.
func main() {
	root := flag.String("root", "", "data root directory (default: ROOT env, then .)")
	heavy := flag.Bool("heavy", true, "apply content boosts and the guide-page reject floor")
	dropRejected := flag.Bool("drop-rejected", false, "remove rejected candidates from the inbox instead of keeping them annotated")
	flag.Parse()

	paths := config.NewPaths(*root)
	criteria, err := config.LoadCriteria(paths.CriteriaFile())
	if err != nil {
		log.Fatalf("Failed to load criteria: %v", err)
	}

	cands, err := track.ReadCandidates(paths.Candidates())
	if err != nil {
		log.Fatalf("Failed to read candidate inbox: %v", err)
	}
	if len(cands) == 0 {
		log.Println("Candidate inbox is empty, nothing to validate")
		return
	}

	v := discover.NewValidator(fetch.NewClient(), criteria.Keywords, *heavy)
	kept, stats := v.ValidateAll(context.Background(), cands)

	out := cands
	if *dropRejected {
		out = kept
	}
	if err := track.WriteCandidates(paths.Candidates(), out); err != nil {
		log.Fatalf("Failed to rewrite candidate inbox: %v", err)
	}
	log.Printf("Validated %d candidates: %d kept, %d rejected, %d written back",
		stats.Checked, stats.Kept, stats.Rejected, len(out))
}
