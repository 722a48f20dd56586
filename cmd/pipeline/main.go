package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/pipeline"
)

func main() {
	root := flag.String("root", "", "data root directory (default: ROOT env, then .)")
	source := flag.String("source", "", "run only the named source, even if disabled")
	skipDiscovery := flag.Bool("skip-discovery", false, "skip the discovery stage")
	skipReports := flag.Bool("skip-reports", false, "skip report generation")
	maxSources := flag.Int("max-sources", 0, "cap on sources scraped, 0 means no cap")
	flag.Parse()

	// An interrupt stops the run between sources; persistence still happens.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pc, cleanup, err := pipeline.BuildContext(config.NewPaths(*root))
	if err != nil {
		log.Fatalf("Failed to prepare run: %v", err)
	}
	defer cleanup()

	meta, err := pipeline.Run(ctx, pc, pipeline.Options{
		Source:        *source,
		MaxSources:    *maxSources,
		SkipDiscovery: *skipDiscovery,
		SkipReports:   *skipReports,
	})
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	if len(meta.Errors) > 0 {
		log.Printf("Run %s finished with %d errors:", meta.RunID, len(meta.Errors))
		for _, e := range meta.Errors {
			log.Printf("  - %s", e)
		}
	}
}
