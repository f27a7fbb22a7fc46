package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Params are the inputs a rule table matches on.
type Params struct {
	Service string `json:"service" yaml:"service"`
	Region  string `json:"region" yaml:"region"`
	Tenant  string `json:"tenant,omitempty" yaml:"tenant,omitempty"`
	UseFIPS bool   `json:"use_fips,omitempty" yaml:"use_fips,omitempty"`
}

type Match struct {
	// Service and Region are path.Match globs; empty matches anything.
	Service string `yaml:"service"`
	Region  string `yaml:"region"`
	// FIPS constrains Params.UseFIPS when set.
	FIPS *bool `yaml:"fips"`
}

type Rule struct {
	Match      Match               `yaml:"match"`
	URL        string              `yaml:"url"`
	Headers    Headers             `yaml:"headers"`
	Properties map[string]string   `yaml:"properties"`

	// File and Index locate the rule for diagnostics.
	File  string `yaml:"-"`
	Index int    `yaml:"-"`
}

type File struct {
	Rules []Rule `yaml:"rules"`
}

// RuleSet is an ordered, immutable list of rules.
type RuleSet struct {
	rules []Rule
}

func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Rules returns a copy of the rules in match order.
func (s *RuleSet) Rules() []Rule {
	if s == nil {
		return nil
	}
	return append([]Rule(nil), s.rules...)
}

// HeaderField is one header name with its values.
type HeaderField struct {
	Name   string
	Values []string
}

// Headers keeps header declarations in file order.
type Headers []HeaderField

func (h *Headers) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!null" {
		*h = nil
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: headers must be a mapping of name to value list", n.Line)
	}
	out := make(Headers, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var name string
		if err := n.Content[i].Decode(&name); err != nil {
			return err
		}
		var values []string
		if err := n.Content[i+1].Decode(&values); err != nil {
			return fmt.Errorf("header %q: %w", name, err)
		}
		out = append(out, HeaderField{Name: name, Values: values})
	}
	*h = out
	return nil
}

// Map returns the headers keyed by name.
func (h Headers) Map() map[string][]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string][]string, len(h))
	for _, f := range h {
		out[f.Name] = append(out[f.Name], f.Values...)
	}
	return out
}
