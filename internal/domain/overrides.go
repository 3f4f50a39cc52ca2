package domain

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/ppiankov/coursework/internal/model"
	"gopkg.in/yaml.v3"
)

// Overrides are user-supplied adjustments layered on top of a domain profile
type Overrides struct {
	Domain        string             `yaml:"domain,omitempty" json:"domain,omitempty"`
	DomainName    string             `yaml:"domain_name,omitempty" json:"domainName,omitempty"`
	Keywords      []string           `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	HourEstimates map[string]float64 `yaml:"hour_estimates,omitempty" json:"hourEstimates,omitempty"`
	Patterns      map[string]string  `yaml:"patterns,omitempty" json:"patterns,omitempty"` // type -> regular expression
}

type compiledOverrides struct {
	domain    Domain
	domainSet bool
	name      string
	keywords  []string
	hours     map[model.AssignmentType]float64
	patterns  []TypePattern
}

// LoadOverrides reads an overrides YAML file
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var ov Overrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	if _, err := ov.compile(); err != nil {
		return nil, err
	}
	return &ov, nil
}

// compile validates the overrides. Pattern keys are sorted so the resulting
// matcher order does not depend on map iteration.
func (o *Overrides) compile() (compiledOverrides, error) {
	var c compiledOverrides
	if o == nil {
		return c, nil
	}

	if o.Domain != "" {
		d, ok := ParseDomain(o.Domain)
		if !ok {
			return c, model.WrapError(model.ErrInvalidInput, "domain overrides", fmt.Errorf("unknown domain %q", o.Domain))
		}
		c.domain, c.domainSet = d, true
	}
	c.name = o.DomainName
	c.keywords = o.Keywords

	if len(o.HourEstimates) > 0 {
		c.hours = make(map[model.AssignmentType]float64, len(o.HourEstimates))
		for name, h := range o.HourEstimates {
			if h <= 0 {
				return c, model.WrapError(model.ErrInvalidInput, "domain overrides", fmt.Errorf("hour estimate for %q must be positive", name))
			}
			c.hours[model.ParseAssignmentType(name)] = h
		}
	}

	keys := make([]string, 0, len(o.Patterns))
	for k := range o.Patterns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		re, err := regexp.Compile(`(?i)` + o.Patterns[k])
		if err != nil {
			return c, model.WrapError(model.ErrInvalidInput, "domain overrides", fmt.Errorf("pattern for %q: %w", k, err))
		}
		c.patterns = append(c.patterns, TypePattern{Type: model.ParseAssignmentType(k), Pattern: re})
	}
	return c, nil
}
