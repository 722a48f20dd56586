package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/models"
	"github.com/david/scholarship-scout/internal/report"
)

func main() {
	root := flag.String("root", "", "data root directory (default: ROOT env, then .)")
	limit := flag.Int("limit", 10, "how many runs to list")
	flag.Parse()

	paths := config.NewPaths(*root)
	dirs, err := report.RunDirs(paths.Root)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Run", "Leads", "A", "B", "C", "Sources", "Errors", "Duration", "Started At"})

	shown := 0
	for _, dir := range dirs {
		if shown >= *limit {
			break
		}
		meta, err := report.ReadRunMeta(filepath.Join(dir, "run_meta.json"))
		if err != nil {
			// Older production dirs predate run metadata.
			continue
		}

		duration := "Running..."
		if !meta.FinishedAt.IsZero() {
			duration = meta.FinishedAt.Sub(meta.StartedAt).Round(time.Second).String()
		}

		t.AppendRow(table.Row{
			shortID(meta.RunID), meta.LeadCount,
			meta.Buckets[models.BucketApply], meta.Buckets[models.BucketPrepare], meta.Buckets[models.BucketRejected],
			len(meta.Sources), len(meta.Errors),
			duration, meta.StartedAt.Local().Format("2006-01-02 15:04:05"),
		})
		shown++
	}
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
