package bulk

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Plan lists merge groups to run one after another, each in its own
// transaction.
//
//	policy: soft
//	groups:
//	  - into: PTY-00001
//	    duplicates: [PTY-00002, "ACME Corp"]
//	  - into: Globex
//	    duplicates: [n:Globex Inc]
//	    policy: hard
type Plan struct {
	Policy string  `yaml:"policy" validate:"omitempty,oneof=soft hard"`
	Groups []Group `yaml:"groups" validate:"required,min=1,dive"`
}

// Group merges Duplicates into Into. Both sides are party selectors.
type Group struct {
	Into       string   `yaml:"into" validate:"required"`
	Duplicates []string `yaml:"duplicates" validate:"required,min=1,dive,required"`
	Policy     string   `yaml:"policy" validate:"omitempty,oneof=soft hard"`
}

// PolicyOr returns the group's policy, then the plan's, then fallback.
func (p *Plan) PolicyOr(g Group, fallback string) string {
	if g.Policy != "" {
		return g.Policy
	}
	if p.Policy != "" {
		return p.Policy
	}
	return fallback
}

// Label names group i in progress output and errors.
func (g Group) Label(i int) string {
	return fmt.Sprintf("#%d %s <- %s", i+1, g.Into, strings.Join(g.Duplicates, ", "))
}

// LoadPlan reads and validates a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read merge plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates plan YAML.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse merge plan: %w", err)
	}
	for i := range p.Groups {
		g := &p.Groups[i]
		g.Into = strings.TrimSpace(g.Into)
		for j := range g.Duplicates {
			g.Duplicates[j] = strings.TrimSpace(g.Duplicates[j])
		}
	}
	if err := validate.Struct(&p); err != nil {
		return nil, errors.NewNotValid(err, "invalid merge plan")
	}
	return &p, nil
}
