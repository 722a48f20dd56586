package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/criteria.yml
var embeddedCriteriaYAML []byte

// Profile describes the applicant the pipeline is hunting for.
type Profile struct {
	Nationality     string   `yaml:"nationality"`
	StudyLevel      string   `yaml:"study_level"`
	Field           string   `yaml:"field"`
	StudyStart      string   `yaml:"study_start"` // ISO month, e.g. 2026-09
	IntakeYear      string   `yaml:"intake_year"`
	TargetCountries []string `yaml:"target_countries"`
}

// Keywords holds the pattern vocabularies used by discovery and validation.
type Keywords struct {
	Funding       []string `yaml:"funding"`
	Search        []string `yaml:"search"`
	Deny          []string `yaml:"deny"`
	GuidePatterns []string `yaml:"guide_patterns"`
}

// Criteria is the parsed criteria.yml.
type Criteria struct {
	Profile  Profile  `yaml:"profile"`
	Keywords Keywords `yaml:"keywords"`
}

// LoadCriteria reads path when it exists, the embedded default otherwise.
func LoadCriteria(path string) (*Criteria, error) {
	raw := embeddedCriteriaYAML
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			raw = data
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read criteria config %s: %w", path, err)
		}
	}

	expanded := os.ExpandEnv(string(raw))
	var c Criteria
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, fmt.Errorf("failed to parse criteria config: %w", err)
	}

	return &c, nil
}

// Validate collects problems; the deny and guide lists must compile because
// discovery uses them as regular expressions.
func (c *Criteria) Validate() []string {
	var problems []string

	if c.Profile.StudyStart != "" {
		if ok, _ := regexp.MatchString(`^\d{4}-\d{2}$`, c.Profile.StudyStart); !ok {
			problems = append(problems, fmt.Sprintf("profile.study_start %q is not an ISO month", c.Profile.StudyStart))
		}
	}
	if len(c.Keywords.Funding) == 0 {
		problems = append(problems, "keywords.funding is empty; validation would reject every candidate")
	}
	for _, p := range c.Keywords.Deny {
		if _, err := regexp.Compile(p); err != nil {
			problems = append(problems, fmt.Sprintf("keywords.deny pattern %q does not compile: %v", p, err))
		}
	}
	for _, p := range c.Keywords.GuidePatterns {
		if _, err := regexp.Compile(p); err != nil {
			problems = append(problems, fmt.Sprintf("keywords.guide_patterns pattern %q does not compile: %v", p, err))
		}
	}

	return problems
}
