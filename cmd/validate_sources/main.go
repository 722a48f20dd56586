package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/rules"
)

// Lints the three config files before a run gets to trip over them.
func main() {
	root := flag.String("root", "", "data root directory (default: ROOT env, then .)")
	flag.Parse()

	paths := config.NewPaths(*root)
	problems := 0

	if sources, err := config.LoadSources(paths.SourcesFile()); err != nil {
		fmt.Fprintf(os.Stderr, "sources: %v\n", err)
		problems++
	} else {
		problems += print("sources", sources.Validate())
	}

	if criteria, err := config.LoadCriteria(paths.CriteriaFile()); err != nil {
		fmt.Fprintf(os.Stderr, "criteria: %v\n", err)
		problems++
	} else {
		problems += print("criteria", criteria.Validate())
	}

	if ruleSet, err := rules.Load(paths.RulesFile()); err != nil {
		fmt.Fprintf(os.Stderr, "rules: %v\n", err)
		problems++
	} else {
		problems += print("rules", ruleSet.Validate())
	}

	if problems > 0 {
		fmt.Fprintf(os.Stderr, "%d problem(s) found\n", problems)
		os.Exit(1)
	}
	fmt.Println("All configs valid")
}

func print(name string, problems []string) int {
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "%s: %s\n", name, p)
	}
	return len(problems)
}
