package main

import (
	"flag"
	"log"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/track"
)

func main() {
	root := flag.String("root", "", "data root directory (default: ROOT env, then .)")
	flag.Parse()

	paths := config.NewPaths(*root)
	store, err := track.Open(paths.URLStateDB())
	if err != nil {
		log.Fatalf("Failed to open url-state store: %v", err)
	}
	defer store.Close()

	counts, err := store.CountByStatus()
	if err != nil {
		log.Fatalf("Failed to count url states: %v", err)
	}

	statuses := make([]string, 0, len(counts))
	total := 0
	for s, n := range counts {
		statuses = append(statuses, s)
		total += n
	}
	sort.Strings(statuses)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Status", "URLs"})
	for _, s := range statuses {
		t.AppendRow(table.Row{s, counts[s]})
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
}
