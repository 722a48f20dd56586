package pipeline

import (
	"fmt"
	"log"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/rules"
	"github.com/david/scholarship-scout/internal/track"
)

// BuildContext loads the configuration files and opens the tracking stores
// for one run. The returned cleanup closes the url-state store and must be
// called once the run is over.
func BuildContext(paths config.Paths) (Context, func(), error) {
	if err := paths.EnsureDirs(); err != nil {
		return Context{}, nil, err
	}

	sources, err := config.LoadSources(paths.SourcesFile())
	if err != nil {
		return Context{}, nil, fmt.Errorf("load sources: %w", err)
	}
	criteria, err := config.LoadCriteria(paths.CriteriaFile())
	if err != nil {
		return Context{}, nil, fmt.Errorf("load criteria: %w", err)
	}
	ruleSet, err := rules.Load(paths.RulesFile())
	if err != nil {
		return Context{}, nil, fmt.Errorf("load rules: %w", err)
	}
	health, err := track.LoadHealth(paths.SourceHealth(), sources.Limits.MaxFailures)
	if err != nil {
		return Context{}, nil, fmt.Errorf("load source health: %w", err)
	}
	endpoints, err := track.LoadAPIEndpoints(paths.APIEndpoints())
	if err != nil {
		return Context{}, nil, fmt.Errorf("load api endpoints: %w", err)
	}
	states, err := track.Open(paths.URLStateDB())
	if err != nil {
		return Context{}, nil, err
	}

	pc := Context{
		Paths:     paths,
		Client:    fetch.NewClient(),
		States:    states,
		Health:    health,
		Rules:     ruleSet,
		Criteria:  criteria,
		Sources:   sources,
		Endpoints: endpoints,
	}
	cleanup := func() {
		if err := states.Close(); err != nil {
			log.Printf("[pipeline] ⚠️ closing url-state store: %v", err)
		}
	}
	return pc, cleanup, nil
}
