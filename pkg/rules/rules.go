// Package rules loads search queries ("rules") and their optional tags.
package rules

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Rule is one query submitted to the search API. Tag, when set, is echoed
// back on every matching activity.
type Rule struct {
	Value string `yaml:"value" json:"value"`
	Tag   string `yaml:"tag,omitempty" json:"tag,omitempty"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// FromArgs builds the single rule given on the command line
func FromArgs(value, tag string) []Rule {
	return []Rule{{Value: value, Tag: tag}}
}

// LoadFile reads rules from a YAML or JSON file. Both a top level "rules"
// list and a bare list of rules are accepted.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes rules from YAML or JSON bytes and validates them
func Parse(data []byte) ([]Rule, error) {
	var wrapped ruleFile
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Rules) > 0 {
		return wrapped.Rules, Validate(wrapped.Rules)
	}

	var bare []Rule
	if err := yaml.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if len(bare) == 0 {
		return nil, fmt.Errorf("no rules found")
	}
	return bare, Validate(bare)
}

// Validate reports every rule with an empty value
func Validate(rules []Rule) error {
	var result *multierror.Error
	for i, r := range rules {
		if strings.TrimSpace(r.Value) == "" {
			result = multierror.Append(result, fmt.Errorf("rule %d: empty value", i+1))
		}
	}
	return result.ErrorOrNil()
}

// ApplyTag sets tag on the first rule when tag is non-empty
func ApplyTag(rules []Rule, tag string) {
	if tag != "" && len(rules) > 0 {
		rules[0].Tag = tag
	}
}

// LooksLikeFile reports whether arg names an existing rules file rather
// than being a query itself
func LooksLikeFile(arg string) bool {
	lower := strings.ToLower(arg)
	if !strings.HasSuffix(lower, ".yaml") && !strings.HasSuffix(lower, ".yml") && !strings.HasSuffix(lower, ".json") {
		return false
	}
	info, err := os.Stat(arg)
	return err == nil && !info.IsDir()
}
